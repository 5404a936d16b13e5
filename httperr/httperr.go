// Package httperr defines the error taxonomy shared by the live-admin and
// webhook clients. Callers distinguish cases with errors.As; everything here
// is converted into result data before it reaches an entrypoint.
package httperr

import "fmt"

// Transport is a non-2xx HTTP response.
type Transport struct {
	Status int
	Body   string
}

func (e *Transport) Error() string {
	return fmt.Sprintf("unexpected HTTP %d: %s", e.Status, e.Body)
}

// Upstream is a 2xx response whose payload reports a logical failure.
type Upstream struct {
	Message string
}

func (e *Upstream) Error() string { return e.Message }

// Protocol is a 2xx response with an unexpected payload shape.
type Protocol struct {
	Reason string
}

func (e *Protocol) Error() string { return "unexpected response shape: " + e.Reason }
