package stompws

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/vovakirdan/roomchat/internal/auth"
	"github.com/vovakirdan/roomchat/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		auth bool
	}{
		{"nil", nil, false},
		{"unauthorized frame", errors.New("Unauthorized"), true},
		{"forbidden", errors.New("403 Forbidden"), true},
		{"expired jwt", errors.New("JWT expired at 2026-01-01"), true},
		{"invalid token", errors.New("Invalid token supplied"), true},
		{"access denied", errors.New("AccessDeniedException: Access Denied"), true},
		{"already auth", fmt.Errorf("x: %w", auth.ErrUnauthorized), true},
		{"refused on port 4013", errors.New("dial tcp 127.0.0.1:4013: connect: connection refused"), false},
		{"closed", errors.New("connection closed unexpectedly"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if core.IsAuthFailure(got) != tt.auth {
				t.Fatalf("Classify(%q) auth=%v, want %v", tt.err, core.IsAuthFailure(got), tt.auth)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error must wrap the original")
			}
		})
	}
}

func TestClassifyDialStatus(t *testing.T) {
	cause := errors.New("handshake failed")
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		err := classifyDial(&http.Response{StatusCode: code}, cause)
		if !errors.Is(err, core.ErrAuthExpired) {
			t.Fatalf("status %d should be an auth failure, got %v", code, err)
		}
	}
	err := classifyDial(&http.Response{StatusCode: http.StatusBadGateway}, cause)
	if core.IsAuthFailure(err) || !errors.Is(err, cause) {
		t.Fatalf("502 must stay retryable and wrap the cause, got %v", err)
	}
}
