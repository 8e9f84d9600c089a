package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/stablepay/paybot/core/logger"
)

// RefreshFunc exchanges the current token for a fresh one. It runs outside
// any store lock and may block on network I/O.
type RefreshFunc func(ctx context.Context, s Session) (token string, expiresAt time.Time, err error)

// RefresherOptions tune the background refresh loop.
type RefresherOptions struct {
	// Interval is how often the full session set is scanned.
	Interval time.Duration
	// Threshold is the remaining-lifetime window that makes a session due.
	Threshold time.Duration
	// QueueSize bounds the on-demand refresh queue fed by store reads.
	QueueSize int
}

// Refresher extends session tokens before they expire. Work arrives two
// ways: a fixed-interval scan over the whole store, and on-demand requests
// enqueued by Get when a read observes a sub-threshold session. In both
// cases the outbound refresh call runs outside locks; the result is written
// back through ApplyRefresh, and a failed refresh leaves the session exactly
// as it was.
type Refresher struct {
	store   Store
	refresh RefreshFunc
	opts    RefresherOptions

	requests chan int64

	inflightMu sync.Mutex
	inflight   map[int64]struct{}

	refreshed atomic.Uint64
	failed    atomic.Uint64
}

// NewRefresher builds a refresher; Run must be called to start it.
func NewRefresher(store Store, refresh RefreshFunc, opts RefresherOptions) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 10 * time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Refresher{
		store:    store,
		refresh:  refresh,
		opts:     opts,
		requests: make(chan int64, opts.QueueSize),
		inflight: make(map[int64]struct{}),
	}
}

// Enqueue requests an out-of-band refresh. It never blocks; a full queue
// drops the request since the next scan will pick the session up anyway.
func (r *Refresher) Enqueue(id int64) {
	select {
	case r.requests <- id:
	default:
	}
}

// Run drives the refresh loop until the context is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	logger.Info(ctx, "session.refresh", "started",
		slog.Duration("interval", r.opts.Interval),
		slog.Duration("threshold", r.opts.Threshold),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "session.refresh", "stopped")
			return
		case id := <-r.requests:
			if s, ok := r.store.Peek(ctx, id); ok {
				r.refreshOne(ctx, s)
			}
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

// scan snapshots the sessions due for refresh, then refreshes each outside
// the store lock.
func (r *Refresher) scan(ctx context.Context) {
	due := r.store.Expiring(ctx, r.opts.Threshold)
	if len(due) == 0 {
		return
	}
	logger.Debug(ctx, "session.refresh", "scan",
		slog.Int("sessions", len(due)),
	)
	for _, s := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.refreshOne(ctx, s)
	}
}

func (r *Refresher) refreshOne(ctx context.Context, s Session) {
	if !r.begin(s.ConversationID) {
		return
	}
	defer r.end(s.ConversationID)

	token, expiresAt, err := r.refresh(ctx, s)
	if err != nil {
		r.failed.Add(1)
		logger.Warn(ctx, "session.refresh", "refresh.fail",
			slog.Int64("chat_id", s.ConversationID),
			slog.String("err", err.Error()),
		)
		return
	}

	if !r.store.ApplyRefresh(ctx, s.ConversationID, token, expiresAt) {
		// Session was logged out while the refresh ran; nothing to keep.
		return
	}
	r.refreshed.Add(1)
	logger.Info(ctx, "session.refresh", "refreshed",
		slog.Int64("chat_id", s.ConversationID),
		slog.Int64("expires_in_s", int64(time.Until(expiresAt).Seconds())),
	)
}

func (r *Refresher) begin(id int64) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Refresher) end(id int64) {
	r.inflightMu.Lock()
	delete(r.inflight, id)
	r.inflightMu.Unlock()
}

// Refreshed returns the number of successful refreshes.
func (r *Refresher) Refreshed() uint64 { return r.refreshed.Load() }

// Failed returns the number of failed refresh attempts.
func (r *Refresher) Failed() uint64 { return r.failed.Load() }
