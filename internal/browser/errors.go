package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Typed failure kinds surfaced to the route layer. The dispatcher maps these
// to HTTP statuses and applies the purge side effect for expired sessions.
var (
	// ErrNoActiveSession means no controller exists for the tab.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionExpired means the backend reports the page, context or
	// browser is gone. Callers must purge the session before responding.
	ErrSessionExpired = errors.New("session expired")

	// ErrActionTimeout means the operation exceeded its own bound. State is
	// unchanged and the caller may retry.
	ErrActionTimeout = errors.New("action timed out")

	// ErrLaunchFailure means the backend could not be reached or rejected
	// provisioning.
	ErrLaunchFailure = errors.New("launch failed")
)

// disconnectPhrases is the maintained allow-list of backend error text that
// indicates the underlying page, target or protocol connection is dead. The
// backend does not distinguish these structurally, so this list is the only
// place that needs updating as its vocabulary changes.
var disconnectPhrases = []string{
	"target closed",
	"session closed",
	"browser has disconnected",
	"page has been closed",
	"cdp connection",
	"websocket: close",
	"use of closed network connection",
	"cannot find context with specified id",
}

// Classify converts a raw backend error into its typed kind. It is the single
// point of string-based disconnect detection.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrActionTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrActionTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range disconnectPhrases {
		if strings.Contains(msg, phrase) {
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
	}
	return err
}
