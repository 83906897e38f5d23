// Package editlock mirrors a trip's server-side edit lock: it acquires the
// lock, keeps it alive with heartbeats and gives it back. The server is the
// only arbiter of ownership; anything unclear collapses to "not editing".
package editlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/backend"
	"github.com/trip-planner/planner/internal/logging"
)

// DefaultHeartbeatInterval is used when the server does not name one.
const DefaultHeartbeatInterval = 30 * time.Second

// UnknownOwner is recorded when a conflict does not say who holds the lock.
const UnknownOwner int64 = -1

// ErrAcquireInProgress is wrapped in the Busy error StartEdit returns while
// an acquisition is pending. The repeated call sends nothing.
var ErrAcquireInProgress = errors.New("lock acquisition already in progress")

// State is the session's position in the edit lifecycle.
type State int

const (
	Idle State = iota
	Acquiring
	Editing
	Renewing
)

func (s State) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Editing:
		return "editing"
	case Renewing:
		return "renewing"
	default:
		return "idle"
	}
}

// LockService is the remote lock API.
type LockService interface {
	AcquireLock(ctx context.Context, tripID int64) (*backend.LockGrant, error)
	Heartbeat(ctx context.Context, tripID int64) (*backend.HeartbeatAck, error)
	ReleaseLock(ctx context.Context, tripID int64) error
	LockStatus(ctx context.Context, tripID int64) (*backend.LockStatus, error)
}

// Status is a snapshot of the session.
type Status struct {
	TripID            int64  `json:"tripId,omitempty"`
	State             string `json:"state"`
	Editing           bool   `json:"isEditing"`
	CurrentOwner      *int64 `json:"currentOwner,omitempty"`
	HeartbeatInterval int    `json:"heartbeatInterval"` // seconds
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	DefaultInterval time.Duration
	RequestTimeout  time.Duration
	Guard           Guard
	Notifier        Notifier
	Users           UserIDSource
	Logger          *slog.Logger
}

// Session is one client's view of a trip's edit lock.
type Session struct {
	locks           LockService
	guard           Guard
	notifier        Notifier
	users           UserIDSource
	logger          *slog.Logger
	defaultInterval time.Duration
	requestTimeout  time.Duration

	cron     *cron.Cron
	renewing atomic.Bool
	interval atomic.Int64 // nanoseconds; read by the scheduler without mu

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	tripID       int64
	currentOwner *int64
	entry        cron.EntryID
	generation   uint64
	closed       bool
}

// New creates an idle session and starts its scheduler. Call Close when done.
func New(locks LockService, opts Options) *Session {
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = DefaultHeartbeatInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Guard == nil {
		opts.Guard = nopGuard{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	cronLogger := logging.CronLogger{Logger: opts.Logger}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		locks:           locks,
		guard:           opts.Guard,
		notifier:        opts.Notifier,
		users:           opts.Users,
		logger:          opts.Logger.With("component", "editlock"),
		defaultInterval: opts.DefaultInterval,
		requestTimeout:  opts.RequestTimeout,
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	s.interval.Store(int64(opts.DefaultInterval))
	s.cron.Start()
	return s
}

// StartEdit acquires the edit lock for tripID and starts heartbeating.
// A conflict returns an apperr.Conflict carrying the holder; CurrentOwner
// reports it afterwards as well.
func (s *Session) StartEdit(ctx context.Context, tripID int64) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return apperr.Unavailable("edit session", errors.New("session closed"))
	case s.state == Acquiring:
		s.mu.Unlock()
		return apperr.Wrap(ErrAcquireInProgress, apperr.CodeBusy, "편집 권한을 요청하는 중입니다.", http.StatusConflict)
	case s.state == Editing || s.state == Renewing:
		current := s.tripID
		s.mu.Unlock()
		if current == tripID {
			return nil
		}
		return apperr.Busy(fmt.Sprintf("already editing trip %d", current))
	}
	s.state = Acquiring
	s.tripID = tripID
	generation := s.generation
	s.mu.Unlock()

	grant, err := s.acquire(ctx, tripID)

	s.mu.Lock()
	if s.generation != generation || s.closed {
		s.mu.Unlock()
		if err == nil && grant.Success {
			s.releaseBestEffort(tripID)
		}
		return apperr.Unavailable("edit session", errors.New("session closed during acquisition"))
	}

	if err != nil || !grant.Success {
		s.state = Idle
		s.tripID = 0
		result := s.acquireFailure(tripID, grant, err)
		status := s.statusLocked()
		s.mu.Unlock()
		s.notifier.EditStatusChanged(status)
		return result
	}

	s.state = Editing
	s.tripID = tripID
	s.currentOwner = nil
	interval := s.defaultInterval
	if grant.HeartbeatInterval > 0 {
		interval = time.Duration(grant.HeartbeatInterval) * time.Second
	}
	s.interval.Store(int64(interval))
	s.restartTimerLocked()
	status := s.statusLocked()
	s.mu.Unlock()

	s.guard.Arm()
	s.notifier.EditStatusChanged(status)
	s.logger.Info("edit lock acquired", "trip_id", tripID, "heartbeat_interval", status.HeartbeatInterval)
	return nil
}

func (s *Session) acquire(ctx context.Context, tripID int64) (*backend.LockGrant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	return s.locks.AcquireLock(ctx, tripID)
}

// acquireFailure records the conflict owner and translates the outcome. Must hold mu.
func (s *Session) acquireFailure(tripID int64, grant *backend.LockGrant, err error) error {
	var owner *int64
	conflict := false

	switch {
	case err == nil:
		// 2xx without success: the lock is not ours; treat as held.
		conflict = true
		if grant != nil {
			owner = grant.CurrentOwner
		}
	case backend.StatusOf(err) == http.StatusConflict:
		conflict = true
		var apiErr *backend.APIError
		var payload backend.LockGrant
		if errors.As(err, &apiErr) && apiErr.DecodeData(&payload) == nil {
			owner = payload.CurrentOwner
		}
	}

	if conflict {
		if owner == nil {
			unknown := UnknownOwner
			owner = &unknown
		}
		s.currentOwner = owner
		s.logger.Info("edit lock held by another user", "trip_id", tripID, "owner", *owner)
		return apperr.Conflict("다른 사용자가 편집 중입니다.", *owner)
	}

	s.logger.Warn("edit lock acquisition failed", "trip_id", tripID, "error", err)
	if backend.StatusOf(err) == http.StatusUnauthorized {
		return apperr.Unauthorized("로그인이 필요합니다.")
	}
	return apperr.Unavailable("lock service", err)
}

// EndEdit stops heartbeating and releases the lock. Release failures are
// logged only; the session is idle afterwards either way. When not editing
// nothing is sent.
func (s *Session) EndEdit(ctx context.Context, tripID int64) error {
	s.mu.Lock()
	if s.state != Editing && s.state != Renewing {
		s.mu.Unlock()
		return nil
	}
	if tripID != s.tripID {
		s.mu.Unlock()
		return apperr.BadRequest(fmt.Sprintf("not editing trip %d", tripID))
	}
	s.stopLocked()
	status := s.statusLocked()
	s.mu.Unlock()

	s.guard.Disarm()

	releaseCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()
	if err := s.locks.ReleaseLock(releaseCtx, tripID); err != nil {
		s.logger.Warn("edit lock release failed", "trip_id", tripID, "error", err)
	} else {
		s.logger.Info("edit lock released", "trip_id", tripID)
	}

	s.notifier.EditStatusChanged(status)
	return nil
}

// CheckEditStatus polls the lock state of tripID. It records the holder when
// the trip is locked by someone else and never changes whether this session
// is editing.
func (s *Session) CheckEditStatus(ctx context.Context, tripID int64) (*backend.LockStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	status, err := s.locks.LockStatus(ctx, tripID)
	if err != nil {
		s.logger.Warn("edit lock status check failed", "trip_id", tripID, "error", err)
		return nil, apperr.Unavailable("lock service", err)
	}

	self, selfErr := int64(0), errors.New("unknown")
	if s.users != nil {
		self, selfErr = s.users.UserID()
	}

	s.mu.Lock()
	editing := s.state == Editing || s.state == Renewing
	changed := false
	if !editing {
		switch {
		case status.Locked && status.CurrentOwner != nil && (selfErr != nil || *status.CurrentOwner != self):
			owner := *status.CurrentOwner
			s.currentOwner = &owner
			changed = true
		case !status.Locked && s.currentOwner != nil:
			s.currentOwner = nil
			changed = true
		}
	}
	snapshot := s.statusLocked()
	s.mu.Unlock()

	if changed {
		s.notifier.EditStatusChanged(snapshot)
	}
	return status, nil
}

// beat sends one renewal. Ticks from an older generation and ticks that
// overlap a pending renewal are dropped.
func (s *Session) beat(generation uint64) {
	if !s.renewing.CompareAndSwap(false, true) {
		s.logger.Debug("heartbeat skipped, renewal in flight")
		return
	}
	defer s.renewing.Store(false)

	s.mu.Lock()
	if s.generation != generation || s.state != Editing {
		s.mu.Unlock()
		return
	}
	tripID := s.tripID
	s.state = Renewing
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, s.requestTimeout)
	ack, err := s.locks.Heartbeat(ctx, tripID)
	cancel()

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		return
	}
	s.state = Editing

	if err != nil && backend.StatusOf(err) != http.StatusUnauthorized {
		s.mu.Unlock()
		s.logger.Warn("heartbeat failed, retrying next interval", "trip_id", tripID, "error", err)
		return
	}

	if err != nil || !ack.Success {
		s.stopLocked()
		status := s.statusLocked()
		s.mu.Unlock()
		s.forceEndEdit(tripID, status, err)
		return
	}

	if ack.NextHeartbeat > 0 {
		s.interval.Store(int64(time.Duration(ack.NextHeartbeat) * time.Second))
	}
	if ack.ShouldRestart {
		s.restartTimerLocked()
	}
	s.mu.Unlock()
}

// forceEndEdit runs after the server reported the lock as lost. No release is sent.
func (s *Session) forceEndEdit(tripID int64, status Status, cause error) {
	s.guard.Disarm()
	s.logger.Warn("edit lock lost", "trip_id", tripID, "error", cause)
	s.notifier.EditLost(tripID, LostNoticeText)
	s.notifier.EditStatusChanged(status)
}

// restartTimerLocked replaces the heartbeat entry with a fresh one. Must hold mu.
func (s *Session) restartTimerLocked() {
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.generation++
	s.entry = s.cron.Schedule(
		intervalSchedule{interval: s.currentInterval},
		heartbeatJob{session: s, generation: s.generation},
	)
}

// stopLocked cancels the heartbeat and returns to idle. Must hold mu.
func (s *Session) stopLocked() {
	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.generation++
	s.state = Idle
	s.tripID = 0
	s.currentOwner = nil
	s.interval.Store(int64(s.defaultInterval))
}

func (s *Session) currentInterval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Close tears the session down without contacting the server. Responses
// still in flight are ignored. Callers wanting a release call EndEdit first.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	wasEditing := s.state == Editing || s.state == Renewing
	s.stopLocked()
	s.mu.Unlock()

	if wasEditing {
		s.guard.Disarm()
	}
	s.cancel()
	<-s.cron.Stop().Done()
}

// IsEditing reports whether this session holds the lock.
func (s *Session) IsEditing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Editing || s.state == Renewing
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TripID returns the trip being edited, or 0.
func (s *Session) TripID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripID
}

// CurrentOwner returns the other user last seen holding the lock, if any.
func (s *Session) CurrentOwner() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentOwner == nil {
		return 0, false
	}
	return *s.currentOwner, true
}

// HeartbeatInterval returns the interval used for the next heartbeat cycle.
func (s *Session) HeartbeatInterval() time.Duration {
	return s.currentInterval()
}

// LeavePrompt returns the confirmation text to show on leave, or "" when
// leaving is harmless.
func (s *Session) LeavePrompt() string {
	if s.IsEditing() {
		return LeavePromptText
	}
	return ""
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		TripID:            s.tripID,
		State:             s.state.String(),
		Editing:           s.state == Editing || s.state == Renewing,
		HeartbeatInterval: int(s.currentInterval() / time.Second),
	}
	if s.currentOwner != nil {
		owner := *s.currentOwner
		st.CurrentOwner = &owner
	}
	return st
}

func (s *Session) releaseBestEffort(tripID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if err := s.locks.ReleaseLock(ctx, tripID); err != nil {
		s.logger.Warn("edit lock release failed", "trip_id", tripID, "error", err)
	}
}
