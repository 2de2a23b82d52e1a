package stompws

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/vovakirdan/roomchat/internal/core"
)

// authPattern matches what brokers put into ERROR frames and close reasons when
// they reject credentials.
var authPattern = regexp.MustCompile(`(?i)\b(401|403|unauthori[sz]ed|forbidden|expired|invalid[ _-]?token|access[ _-]?denied)\b`)

// Classify marks authorization failures with core.ErrAuthExpired so the session
// does not retry them. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || core.IsAuthFailure(err) {
		return err
	}
	if authPattern.MatchString(err.Error()) {
		return fmt.Errorf("%w: %w", core.ErrAuthExpired, err)
	}
	return err
}

func classifyDial(resp *http.Response, err error) error {
	if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("%w: websocket upgrade rejected with status %d", core.ErrAuthExpired, resp.StatusCode)
	}
	return fmt.Errorf("websocket dial: %w", err)
}
