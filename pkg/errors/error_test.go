package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestNewAndMessage(t *testing.T) {
	err := New(MatchNotFound)
	if err.Code != MatchNotFound {
		t.Fatalf("code = %d, want MatchNotFound", err.Code)
	}
	if err.Error() == "" {
		t.Fatalf("default message missing")
	}

	custom := Newf(SessionNotFound, "session %s not found", "sess-1")
	if custom.Error() != "session sess-1 not found" {
		t.Fatalf("message = %q", custom.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, TransportError)

	if GetCode(err) != TransportError {
		t.Fatalf("code = %d, want TransportError", GetCode(err))
	}
	if !stderrors.Is(err, cause) {
		t.Fatalf("wrapped cause lost")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, InternalError) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
	if Wrapf(nil, InternalError, "x") != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}

func TestGetCodeOnForeignError(t *testing.T) {
	if got := GetCode(stderrors.New("plain")); got != InternalError {
		t.Fatalf("foreign error code = %d, want InternalError", got)
	}
	if got := GetCode(nil); got != Success {
		t.Fatalf("nil error code = %d, want Success", got)
	}
}

func TestIs(t *testing.T) {
	err := New(ChannelClosed)
	if !Is(err, ChannelClosed) {
		t.Fatalf("Is() missed matching code")
	}
	if Is(err, ChannelNotReady) {
		t.Fatalf("Is() matched wrong code")
	}
}

func TestWithDetail(t *testing.T) {
	err := New(RequestFailed).WithDetail("status", 502).WithDetail("body", "bad gateway")
	if err.Details["status"] != 502 {
		t.Fatalf("details = %v", err.Details)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{Success, http.StatusOK},
		{InvalidParams, http.StatusBadRequest},
		{Unauthorized, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{NotFound, http.StatusNotFound},
		{TooManyRequests, http.StatusTooManyRequests},
		{InternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Fatalf("HTTPStatus(%d) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
