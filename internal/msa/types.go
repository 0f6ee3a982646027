// Package msa is a client for the storage controller XML management API.
package msa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Transport selects plain HTTP or HTTPS. Sessions issued over one are cached
// separately from the other.
type Transport int

const (
	Plain Transport = iota
	TLS
)

// String returns the URL scheme, which is also the cache protocol column.
func (t Transport) String() string {
	if t == TLS {
		return "https"
	}
	return "http"
}

// ParseTransport accepts "http"/"plain" and "https"/"tls".
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(s) {
	case "http", "plain":
		return Plain, nil
	case "https", "tls":
		return TLS, nil
	default:
		return Plain, fmt.Errorf("unknown transport %q", s)
	}
}

// HostIdentity identifies a managed controller.
type HostIdentity struct {
	Address string
	DNSName string
}

// String returns the address, or the DNS name when no address is known.
func (h HostIdentity) String() string {
	if h.Address != "" {
		return h.Address
	}
	return h.DNSName
}

// Response is the parsed envelope of an API call.
type Response struct {
	ReturnCode string
	Message    string
	Document   *etree.Document
}

// Status codes carried in the envelope's return-code property.
const (
	CodeSuccess       = "0"
	CodeAuthenticated = "1"
	CodeAuthRejected  = "2"
)

var (
	// ErrAuthRejected means the controller refused the credentials.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrTransport wraps connection, timeout and TLS failures.
	ErrTransport = errors.New("transport failure")

	// ErrMalformedResponse means the body was not the expected XML envelope.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRequestFailed means a data call returned a non-zero return code.
	ErrRequestFailed = errors.New("request failed")
)

// StatusError carries the envelope of a failed data call.
type StatusError struct {
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: return code %s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is(err, ErrRequestFailed).
func (e *StatusError) Unwrap() error { return ErrRequestFailed }
