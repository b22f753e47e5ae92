package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/marmos91/formsync/pkg/apperror"
)

// APIError represents an error response body from the API.
type APIError struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Code       string `json:"error,omitempty"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

func parseAPIError(status int, body []byte) *APIError {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) != nil || apiErr.Message == "" {
		apiErr = APIError{Message: string(body)}
	}
	apiErr.StatusCode = status
	return &apiErr
}

// toApplicationError maps the status to the application taxonomy. Server
// messages are only surfaced for bad requests, where they describe what
// the user has to correct.
func (e *APIError) toApplicationError() *apperror.Error {
	message := ""
	if e.StatusCode == http.StatusBadRequest {
		message = e.Message
	}
	return apperror.FromHTTPStatus(e.StatusCode, message, e)
}
