package stride

import "fmt"

// ValidationError reports a missing or malformed argument. Operations
// return it before any network call is made.
type ValidationError struct {
	Op    string // operation name, e.g. "sendMessage"
	Param string // offending parameter
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("stride/%s: missing param %s", e.Op, e.Param)
}

// AuthError reports a failed token acquisition for outbound calls, or a
// rejected token on an inbound webhook request.
type AuthError struct {
	Op     string
	Status int    // upstream HTTP status, 0 for transport failures
	Body   string // upstream response body, if any
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stride/%s: auth failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stride/%s: auth failed with status %d: %s", e.Op, e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError reports a non-2xx response or a transport failure from the
// remote chat API.
type UpstreamError struct {
	Op     string
	Status int // 0 for transport failures and timeouts
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stride/%s: request failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stride/%s: request failed with status %d: %s", e.Op, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
