// Package models defines the database entity types.
package models

// Session is a row of the session key cache.
type Session struct {
	DNSName   string
	IP        string
	Proto     string
	ExpiresAt int64
	Key       string
}

// ComponentReading is one recorded observation of a hardware component.
type ComponentReading struct {
	ID          int64
	Host        string
	Resource    string
	ComponentID string
	Health      string
	Fields      map[string]string
	RecordedAt  int64
}
