package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyResponse means the model returned no usable text.
var ErrEmptyResponse = errors.New("empty response from model")

// MalformedResponseError means the reply could not be read as a JSON
// object.
type MalformedResponseError struct {
	Content json.RawMessage
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// TransportError wraps a failure calling the model: network, credentials,
// rate limits or an unavailable service.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
