// Package session finds or creates the browsing session a request belongs
// to. Like the telemetry tracker, it never surfaces a fault to the caller:
// session bookkeeping must not be able to fail a login or a page view.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/kitchen48/telemetry-service/internal/device"
)

// Store is the persistence the resolver needs. FindLiveSession returns the
// most recently active match with lastActiveAt strictly after cutoff, or nil
// when there is none.
type Store interface {
	FindLiveSession(ctx context.Context, userID string, deviceType device.Type, cutoff time.Time) (*Session, error)
	InsertSession(ctx context.Context, s Session) error
	TouchSession(ctx context.Context, id string, lastActiveAt time.Time) error
	AttachUser(ctx context.Context, sessionID, userID string) error
}

// Visit is the identity/device signal of one incoming request.
type Visit struct {
	UserID     string
	DeviceType device.Type
	UserAgent  string
	IPAddress  string
}

// Options configures a Resolver. Store and Logger are required.
type Options struct {
	Store      Store
	Logger     slog.Logger
	Clock      quartz.Clock
	Registerer prometheus.Registerer
}

// Resolver implements the sliding-window session algorithm.
//
// Lookup and insert are two separate store calls with no lock or uniqueness
// constraint between them, so two near-simultaneous resolves for the same
// (user, device) can each miss the other's uncommitted session and create
// two. That matches the reference behavior; duplicate sessions are merely
// noisy, not harmful, and closing the race would change what the second
// caller observes.
type Resolver struct {
	store  Store
	log    slog.Logger
	clock  quartz.Clock
	faults prometheus.Counter
}

// NewResolver builds a Resolver and registers its fault counter.
func NewResolver(opts Options) *Resolver {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	faults := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_store_faults_total",
		Help: "Session lookups, inserts and updates that failed and were swallowed.",
	})
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(faults)
	}
	return &Resolver{
		store:  opts.Store,
		log:    opts.Logger.Named("session"),
		clock:  opts.Clock,
		faults: faults,
	}
}

// Resolve finds the visitor's live session or creates a fresh one, and
// refreshes its lastActiveAt either way. Anonymous visits (no UserID) always
// get a fresh session; there is no cross-request anonymous correlation.
//
// On any store fault Resolve logs, counts and returns "". Callers attach the
// id to subsequent events as correlation metadata and must tolerate its
// absence.
func (r *Resolver) Resolve(ctx context.Context, v Visit) string {
	now := r.clock.Now().UTC()

	if v.UserID != "" {
		cutoff := now.Add(-ActivityWindow)
		existing, err := r.store.FindLiveSession(ctx, v.UserID, v.DeviceType, cutoff)
		if err != nil {
			r.fault(ctx, "session lookup failed", err)
			return ""
		}
		if existing != nil {
			if err := r.store.TouchSession(ctx, existing.ID, now); err != nil {
				r.fault(ctx, "session refresh failed", err)
				return ""
			}
			return existing.ID
		}
	}

	s := Session{
		ID:           uuid.New().String(),
		UserID:       v.UserID,
		DeviceType:   v.DeviceType,
		UserAgent:    v.UserAgent,
		IPAddress:    v.IPAddress,
		StartedAt:    now,
		LastActiveAt: now,
	}
	if err := r.store.InsertSession(ctx, s); err != nil {
		r.fault(ctx, "session insert failed", err)
		return ""
	}
	return s.ID
}

// AttachUser retroactively associates an anonymous session with a user once
// authentication completes. Best-effort: failures are logged and swallowed so
// bookkeeping can never block a login flow.
func (r *Resolver) AttachUser(ctx context.Context, sessionID, userID string) {
	if sessionID == "" || userID == "" {
		return
	}
	if err := r.store.AttachUser(ctx, sessionID, userID); err != nil {
		r.fault(ctx, "session user attach failed", err)
	}
}

func (r *Resolver) fault(ctx context.Context, msg string, err error) {
	r.faults.Inc()
	r.log.Warn(ctx, msg, slog.Error(err))
}
