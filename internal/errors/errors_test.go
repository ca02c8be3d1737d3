package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connect failure", NewConnectError("dial failed", nil), true},
		{"timeout", NewTimeoutError("read timed out", context.DeadlineExceeded), true},
		{"stream interrupted", NewStreamInterruptedError("body lost", nil), true},
		{"upload failed", NewUploadError("status 500", nil), false},
		{"remote rejected", NewRemoteRejectedError("status 400", nil), false},
		{"workflow failed", NewRemoteWorkflowFailedError("failed", nil), false},
		{"malformed", NewMalformedResponseError("bad json", nil), false},
		{"incomplete", NewIncompleteStreamError("no terminal event", nil), false},
		{"validation", NewValidationError("no image", nil), false},
		{"wrapped retryable", fmt.Errorf("attempt 2: %w", NewConnectError("reset", nil)), true},
		{"foreign error", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetStatusCode(t *testing.T) {
	if got := GetStatusCode(NewTimeoutError("slow", nil)); got != http.StatusGatewayTimeout {
		t.Errorf("Expected %d, got %d", http.StatusGatewayTimeout, got)
	}
	if got := GetStatusCode(NewValidationError("bad", nil)); got != http.StatusBadRequest {
		t.Errorf("Expected %d, got %d", http.StatusBadRequest, got)
	}
	if got := GetStatusCode(fmt.Errorf("plain")); got != http.StatusInternalServerError {
		t.Errorf("Expected %d, got %d", http.StatusInternalServerError, got)
	}
}

func TestAppError_UnwrapAndMessage(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewTimeoutError("workflow call timed out", cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
	want := "timeout: workflow call timed out (caused by: context deadline exceeded)"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	detailed := err.WithDetails("attempt 3")
	if detailed.Details != "attempt 3" || err.Details != "" {
		t.Error("Expected WithDetails to copy the error")
	}
	if !IsType(detailed, ErrorTypeTimeout) {
		t.Error("Expected copied error to keep its type")
	}
}
