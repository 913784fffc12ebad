// Package directory is the durable tab-to-backend-session record store. It is
// the single source of truth for session affinity: when a cold instance holds
// no controller in memory, the directory record tells it whether a backend
// session exists and where its live view is.
package directory

import (
	"context"
	"errors"

	"github.com/hallwayapps/browsergate/pkg/models"
)

// ErrBackendIDConflict is returned when a Put would overwrite a non-empty
// backend session id with a different one. That only happens on a tabId
// collision, which is always a caller bug.
var ErrBackendIDConflict = errors.New("backend session id already set for tab")

// Directory stores one record per tabId. Put is an upsert; Get returns
// (nil, nil) on a miss, which is a valid "no session" result distinct from a
// transport failure.
type Directory interface {
	Put(ctx context.Context, rec models.Session) error
	Get(ctx context.Context, tabID string) (*models.Session, error)
	UpdateStatus(ctx context.Context, tabID string, status models.SessionStatus) error
	CacheDebugURL(ctx context.Context, tabID, url string) error
	Delete(ctx context.Context, tabID string) error
	List(ctx context.Context) ([]models.Session, error)
	Close() error
}
