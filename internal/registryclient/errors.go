package registryclient

import (
	"errors"
	"fmt"
	"net/http"

	"oras.land/oras-go/v2/errdef"
)

// AuthenticationError is returned when the registry demands authentication
// (a Bearer challenge on GET /v2/) but no password was configured.
type AuthenticationError struct {
	Registry string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("registryclient: %s requires authentication, provide a username and/or password", e.Registry)
}

// TransportError wraps a non-success HTTP response from the registry.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registryclient: %s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Unwrap exposes errdef.ErrNotFound for a 404, so callers can write
// errors.Is(err, errdef.ErrNotFound) instead of inspecting StatusCode — the
// same sentinel oras-go's own remote registry client uses.
func (e *TransportError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return errdef.ErrNotFound
	}
	return nil
}

func newTransportError(req *http.Request, resp *http.Response) *TransportError {
	return &TransportError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode}
}

func newTransportErrorBody(req *http.Request, resp *http.Response, body []byte) *TransportError {
	return &TransportError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: body}
}

// HasStatusCode reports whether err is (or wraps) a *TransportError carrying
// the given HTTP status code.
func HasStatusCode(err error, code int) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == code
}
