package shared

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAPIError_Fields(t *testing.T) {
	err := NewAPIError("duplicate_call", "call already active")
	if err.Code != "duplicate_call" {
		t.Errorf("expected code 'duplicate_call', got '%s'", err.Code)
	}
	if err.Details != nil {
		t.Errorf("expected nil details, got %v", err.Details)
	}
	if err.Error() != "duplicate_call: call already active" {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestAPIError_WithDetails(t *testing.T) {
	err := NewAPIError("invalid_request", "bad body").WithDetails(map[string]string{"field": "call_id"})
	d, ok := err.Details.(map[string]string)
	if !ok {
		t.Fatal("expected details to be map[string]string")
	}
	if d["field"] != "call_id" {
		t.Errorf("expected field 'call_id', got '%s'", d["field"])
	}
}

func TestHTTPHelpers(t *testing.T) {
	tests := []struct {
		name   string
		err    *echo.HTTPError
		status int
	}{
		{"bad request", BadRequest("c", "m"), http.StatusBadRequest},
		{"not found", NotFound("c", "m"), http.StatusNotFound},
		{"conflict", Conflict("c", "m"), http.StatusConflict},
		{"too many", TooManyRequests("c", "m"), http.StatusTooManyRequests},
		{"unavailable", ServiceUnavailable("c", "m"), http.StatusServiceUnavailable},
		{"internal", InternalError("c", "m"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertHTTPError(t, tt.err, tt.status, "c", "m")
		})
	}
}

func assertHTTPError(t *testing.T, err *echo.HTTPError, expectedStatus int, expectedCode, expectedMessage string) {
	t.Helper()
	if err.Code != expectedStatus {
		t.Errorf("expected status %d, got %d", expectedStatus, err.Code)
	}
	apiErr, ok := err.Message.(*APIError)
	if !ok {
		t.Fatal("expected message to be *APIError")
	}
	if apiErr.Code != expectedCode {
		t.Errorf("expected code '%s', got '%s'", expectedCode, apiErr.Code)
	}
	if apiErr.Message != expectedMessage {
		t.Errorf("expected message '%s', got '%s'", expectedMessage, apiErr.Message)
	}
}
