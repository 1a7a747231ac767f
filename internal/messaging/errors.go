package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrThreadNotFound is returned by the executor for a 404; Messages turns it into an empty thread.
var ErrThreadNotFound = errors.New("message thread not found")

// APIError is a 4xx reply from the messaging service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("messaging returned %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("messaging returned %d: %s", e.Status, msg)
}

// decodeError accepts {"code":..,"message":..} and {"error":{"code":..,"message":..}};
// anything else keeps the raw body as the message.
func decodeError(status int, body []byte) error {
	if status == http.StatusNotFound {
		return ErrThreadNotFound
	}
	apiErr := &APIError{Status: status}

	var wrapped struct {
		Error *APIError `json:"error"`
	}
	switch {
	case json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil:
		apiErr.Code, apiErr.Message = wrapped.Error.Code, wrapped.Error.Message
	case json.Unmarshal(body, apiErr) == nil:
	}
	if apiErr.Code == "" && apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = status
	return apiErr
}
