package prediction

import "fmt"

// FallbackMessage is shown when the API reports a failure without a message.
const FallbackMessage = "Analysis failed"

// ConnectivityError is returned when the API is unreachable or replies with something
// that is not JSON.
type ConnectivityError struct {
	// Address is the backend address shown to the user.
	Address string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("Unable to connect to API. Make sure backend is running on %s", e.Address)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// APIError is returned when the server answered with success:false.
type APIError struct {
	Message    string
	StatusCode int
}

// NewAPIError builds an APIError, substituting FallbackMessage for an empty message.
func NewAPIError(message string, status int) *APIError {
	if message == "" {
		message = FallbackMessage
	}
	return &APIError{Message: message, StatusCode: status}
}

// Error returns the server message verbatim.
func (e *APIError) Error() string {
	return e.Message
}

// MalformedResponseError is returned when success:true arrives without a usable
// prediction.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return "malformed prediction response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
