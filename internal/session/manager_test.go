package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hallwayapps/browsergate/internal/browser"
	"github.com/hallwayapps/browsergate/internal/directory"
	"github.com/hallwayapps/browsergate/internal/provision"
	"github.com/hallwayapps/browsergate/pkg/models"
)

// fakeProvisioner hands out endpoints pointing at a dead port, so launches
// fail at the connect step without needing a real browser.
type fakeProvisioner struct {
	created   int
	described int
	released  int
}

func (f *fakeProvisioner) Create(context.Context, provision.CreateOptions) (*provision.Endpoint, error) {
	f.created++
	return &provision.Endpoint{ID: "bk-fake", ConnectURL: "ws://127.0.0.1:1"}, nil
}

func (f *fakeProvisioner) Describe(_ context.Context, id string) (*provision.Endpoint, error) {
	f.described++
	return &provision.Endpoint{ID: id, ConnectURL: "ws://127.0.0.1:1"}, nil
}

func (f *fakeProvisioner) Release(context.Context, string) error {
	f.released++
	return nil
}

func (f *fakeProvisioner) SupportsLiveView() bool { return false }

func newTestManager() (*Manager, *fakeProvisioner, *directory.Memory) {
	prov := &fakeProvisioner{}
	dir := directory.NewMemory()
	return NewManager(prov, dir, zap.NewNop()), prov, dir
}

func TestGetControllerMiss(t *testing.T) {
	mgr, _, _ := newTestManager()

	ctl, ok := mgr.GetController("nope")
	assert.False(t, ok)
	assert.Nil(t, ctl)
}

func TestCreateSessionLaunchFailureCleansDirectory(t *testing.T) {
	mgr, prov, dir := newTestManager()
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, models.CreateSessionRequest{TabID: "t1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrLaunchFailure))
	assert.Equal(t, 1, prov.created)
	assert.Equal(t, 1, prov.released, "failed launch releases the provisioned backend")

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, rec, "no half-created directory record may survive")

	_, ok := mgr.GetController("t1")
	assert.False(t, ok)
}

func TestCreateSessionReattachFailureFallsThrough(t *testing.T) {
	mgr, prov, dir := newTestManager()
	ctx := context.Background()

	// A previous process recorded a running backend session. The fake's
	// endpoints are unreachable, so reattachment degrades to a fresh launch
	// attempt (which also fails, but must have consumed a Describe first).
	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-old",
		Status:           models.StatusRunning,
	}))

	_, err := mgr.CreateSession(ctx, models.CreateSessionRequest{TabID: "t1"})
	require.Error(t, err)
	assert.Equal(t, 1, prov.described, "reattachment consulted the backend")
	assert.Equal(t, 1, prov.created, "fresh launch attempted after reattach failure")

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, rec, "stale record purged")
}

// recordingDirectory wraps Memory and captures the order of mutating calls.
type recordingDirectory struct {
	*directory.Memory
	ops []string
}

func (r *recordingDirectory) Put(ctx context.Context, rec models.Session) error {
	r.ops = append(r.ops, "put:"+string(rec.Status))
	return r.Memory.Put(ctx, rec)
}

func (r *recordingDirectory) Delete(ctx context.Context, tabID string) error {
	r.ops = append(r.ops, "delete")
	return r.Memory.Delete(ctx, tabID)
}

func TestCreateSessionClearsNonRunningRecord(t *testing.T) {
	// A record left behind by a shutdown (CLOSED) or the retention sweep
	// (EXPIRED) still carries its old backend id, which is immutable in the
	// directory. Creation must delete the record before writing its own or
	// the tab can never get a session again.
	for _, status := range []models.SessionStatus{models.StatusClosed, models.StatusExpired} {
		t.Run(string(status), func(t *testing.T) {
			prov := &fakeProvisioner{}
			dir := &recordingDirectory{Memory: directory.NewMemory()}
			mgr := NewManager(prov, dir, zap.NewNop())
			ctx := context.Background()

			require.NoError(t, dir.Memory.Put(ctx, models.Session{
				TabID:            "t1",
				BackendSessionID: "bk-old",
				Status:           status,
			}))

			_, err := mgr.CreateSession(ctx, models.CreateSessionRequest{TabID: "t1"})
			require.Error(t, err)

			assert.Zero(t, prov.described, "non-running records are not reattached")
			assert.Equal(t, []string{"delete", "put:INITIALIZING", "delete"}, dir.ops,
				"stale record cleared before the fresh launch is recorded")

			rec, err := dir.Get(ctx, "t1")
			require.NoError(t, err)
			assert.Nil(t, rec, "nothing left to collide with the next attempt")
		})
	}
}

// gateProvisioner blocks Create until the test releases it, so every
// concurrent caller piles up on the same in-flight creation.
type gateProvisioner struct {
	fakeProvisioner
	gate chan struct{}
}

func (g *gateProvisioner) Create(ctx context.Context, opts provision.CreateOptions) (*provision.Endpoint, error) {
	<-g.gate
	return g.fakeProvisioner.Create(ctx, opts)
}

func TestConcurrentCreateSharesOneLaunch(t *testing.T) {
	prov := &gateProvisioner{gate: make(chan struct{})}
	mgr := NewManager(prov, directory.NewMemory(), zap.NewNop())

	const callers = 8
	started := make(chan struct{}, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			started <- struct{}{}
			_, err := mgr.CreateSession(context.Background(), models.CreateSessionRequest{TabID: "t1"})
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		<-started
	}
	// Let every caller reach the deduplicated create before unblocking it.
	time.Sleep(50 * time.Millisecond)
	close(prov.gate)

	for i := 0; i < callers; i++ {
		err := <-errs
		require.Error(t, err)
		assert.ErrorIs(t, err, browser.ErrLaunchFailure)
	}
	assert.Equal(t, 1, prov.created, "concurrent first-requests converge on one backend launch")
}

func TestCloseSessionIdempotent(t *testing.T) {
	mgr, _, dir := newTestManager()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-1",
		Status:           models.StatusRunning,
	}))

	// No in-memory controller: closing still flips the directory status and
	// never errors, twice in a row.
	mgr.CloseSession(ctx, "t1")
	mgr.CloseSession(ctx, "t1")

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusClosed, rec.Status)
}

func TestPurgeRemovesDirectoryRecord(t *testing.T) {
	mgr, _, dir := newTestManager()
	ctx := context.Background()

	require.NoError(t, dir.Put(ctx, models.Session{
		TabID:            "t1",
		BackendSessionID: "bk-1",
		Status:           models.StatusRunning,
	}))

	mgr.Purge(ctx, "t1")

	rec, err := dir.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, rec, "purge removes the record entirely so the next request creates fresh")
}

func TestListSessionsEmpty(t *testing.T) {
	mgr, _, _ := newTestManager()
	assert.Empty(t, mgr.ListSessions())
}

func TestCloseAllTolerates(t *testing.T) {
	mgr, _, _ := newTestManager()
	// Nothing registered: best-effort teardown is a no-op, not a panic.
	mgr.CloseAll(context.Background())
}
