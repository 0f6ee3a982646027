// Package api holds the JSON shapes served by the status listener.
package api

type ReadingInfo struct {
	ComponentID string            `json:"component_id"`
	Health      string            `json:"health"`
	Fields      map[string]string `json:"fields"`
	RecordedAt  string            `json:"recorded_at"`
}

type ListReadingsResponse struct {
	Host     string        `json:"host"`
	Resource string        `json:"resource"`
	Readings []ReadingInfo `json:"readings"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
