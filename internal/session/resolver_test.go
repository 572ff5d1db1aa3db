package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"

	"github.com/kitchen48/telemetry-service/internal/device"
	"github.com/kitchen48/telemetry-service/internal/session"
)

// fakeStore is a mutex-guarded in-memory session.Store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session

	failFind   bool
	failInsert bool
	failTouch  bool
	failAttach bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]session.Session{}}
}

func (s *fakeStore) FindLiveSession(_ context.Context, userID string, deviceType device.Type, cutoff time.Time) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind {
		return nil, xerrors.New("store down")
	}
	var best *session.Session
	for _, sess := range s.sessions {
		sess := sess
		if sess.UserID != userID || sess.DeviceType != deviceType {
			continue
		}
		if !sess.LastActiveAt.After(cutoff) {
			continue
		}
		if best == nil || sess.LastActiveAt.After(best.LastActiveAt) {
			best = &sess
		}
	}
	return best, nil
}

func (s *fakeStore) InsertSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return xerrors.New("store down")
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeStore) TouchSession(_ context.Context, id string, lastActiveAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTouch {
		return xerrors.New("store down")
	}
	sess, ok := s.sessions[id]
	if !ok {
		return xerrors.Errorf("no session %s", id)
	}
	sess.LastActiveAt = lastActiveAt
	s.sessions[id] = sess
	return nil
}

func (s *fakeStore) AttachUser(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAttach {
		return xerrors.New("store down")
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return xerrors.Errorf("no session %s", sessionID)
	}
	if sess.UserID == "" {
		sess.UserID = userID
		s.sessions[sessionID] = sess
	}
	return nil
}

func (s *fakeStore) get(t *testing.T, id string) session.Session {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	require.True(t, ok, "session %s not in store", id)
	return sess
}

func newResolver(t *testing.T, st *fakeStore, clock quartz.Clock, ignoreErrors bool) *session.Resolver {
	t.Helper()
	return session.NewResolver(session.Options{
		Store:  st,
		Logger: slogtest.Make(t, &slogtest.Options{IgnoreErrors: ignoreErrors}),
		Clock:  clock,
	})
}

// Two back-to-back resolves for the same user and device reuse one session,
// and the second call's timestamp wins.
func TestResolveReusesLiveSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	clock := quartz.NewMock(t)
	r := newResolver(t, st, clock, false)

	visit := session.Visit{
		UserID:     "u1",
		DeviceType: device.Browser,
		UserAgent:  "Mozilla/5.0",
		IPAddress:  "203.0.113.7",
	}

	first := r.Resolve(ctx, visit)
	require.NotEmpty(t, first)

	clock.Advance(time.Minute)
	second := r.Resolve(ctx, visit)
	require.Equal(t, first, second)

	sess := st.get(t, first)
	assert.Equal(t, clock.Now().UTC(), sess.LastActiveAt)
	assert.Equal(t, clock.Now().UTC().Add(-time.Minute), sess.StartedAt)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, device.Browser, sess.DeviceType)
	assert.Equal(t, "Mozilla/5.0", sess.UserAgent)
	assert.Equal(t, "203.0.113.7", sess.IPAddress)
}

// The 30-minute sliding window: 29 minutes of silence keeps the session
// alive, 31 minutes ends it.
func TestResolveActivityWindow(t *testing.T) {
	t.Parallel()

	t.Run("within window", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newFakeStore()
		clock := quartz.NewMock(t)
		r := newResolver(t, st, clock, false)
		visit := session.Visit{UserID: "u1", DeviceType: device.Browser}

		first := r.Resolve(ctx, visit)
		clock.Advance(29 * time.Minute)
		require.Equal(t, first, r.Resolve(ctx, visit))
		assert.Equal(t, clock.Now().UTC(), st.get(t, first).LastActiveAt)
	})

	t.Run("past window", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newFakeStore()
		clock := quartz.NewMock(t)
		r := newResolver(t, st, clock, false)
		visit := session.Visit{UserID: "u1", DeviceType: device.Browser}

		first := r.Resolve(ctx, visit)
		clock.Advance(31 * time.Minute)
		second := r.Resolve(ctx, visit)
		require.NotEqual(t, first, second)
	})
}

// Sessions are per device: the same user on a tablet does not reuse their
// browser session.
func TestResolveDeviceScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	r := newResolver(t, st, quartz.NewMock(t), false)

	browser := r.Resolve(ctx, session.Visit{UserID: "u1", DeviceType: device.Browser})
	tablet := r.Resolve(ctx, session.Visit{UserID: "u1", DeviceType: device.Tablet})
	require.NotEqual(t, browser, tablet)
}

// Anonymous traffic never correlates across requests.
func TestResolveAnonymousAlwaysFresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	r := newResolver(t, st, quartz.NewMock(t), false)
	visit := session.Visit{DeviceType: device.Browser}

	first := r.Resolve(ctx, visit)
	second := r.Resolve(ctx, visit)
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
}

// Store faults are swallowed: the caller gets "" and nothing panics.
func TestResolveStoreFault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("lookup fails", func(t *testing.T) {
		t.Parallel()
		st := newFakeStore()
		st.failFind = true
		r := newResolver(t, st, quartz.NewMock(t), true)
		assert.Empty(t, r.Resolve(ctx, session.Visit{UserID: "u1", DeviceType: device.Browser}))
	})

	t.Run("insert fails", func(t *testing.T) {
		t.Parallel()
		st := newFakeStore()
		st.failInsert = true
		r := newResolver(t, st, quartz.NewMock(t), true)
		assert.Empty(t, r.Resolve(ctx, session.Visit{DeviceType: device.Browser}))
	})

	t.Run("refresh fails", func(t *testing.T) {
		t.Parallel()
		st := newFakeStore()
		clock := quartz.NewMock(t)
		r := newResolver(t, st, clock, true)
		visit := session.Visit{UserID: "u1", DeviceType: device.Browser}

		first := r.Resolve(ctx, visit)
		require.NotEmpty(t, first)

		st.failTouch = true
		assert.Empty(t, r.Resolve(ctx, visit))
	})
}

// AttachUser associates an anonymous session with a user after login and
// swallows every failure.
func TestAttachUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newFakeStore()
	clock := quartz.NewMock(t)
	r := newResolver(t, st, clock, true)

	id := r.Resolve(ctx, session.Visit{DeviceType: device.MobileApp})
	require.NotEmpty(t, id)
	require.Empty(t, st.get(t, id).UserID)

	r.AttachUser(ctx, id, "u9")
	assert.Equal(t, "u9", st.get(t, id).UserID)

	// Already-attached sessions keep their user.
	r.AttachUser(ctx, id, "u10")
	assert.Equal(t, "u9", st.get(t, id).UserID)

	// Missing ids and store faults must not surface.
	r.AttachUser(ctx, "", "u9")
	r.AttachUser(ctx, id, "")
	st.failAttach = true
	r.AttachUser(ctx, id, "u11")
}
