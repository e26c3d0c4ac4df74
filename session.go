package agent

import (
	"context"
	"sync"
	"time"

	"github.com/fieldtrack/agent/internal/config"
	"github.com/fieldtrack/agent/pkg/collector"
	"github.com/fieldtrack/agent/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// State is the session machine's current screen-level state.
type State string

const (
	StateLoading  State = "loading"
	StateRegister State = "register"
	StateWaiting  State = "waiting"
	StateTracking State = "tracking"
)

// StatusClient is the collector surface the session machine needs.
// *collector.Client satisfies it.
type StatusClient interface {
	Register(ctx context.Context, req collector.RegisterRequest) (*collector.Operator, error)
	ShiftStatus(ctx context.Context, operatorID string) (*collector.ShiftStatus, error)
}

// SessionConfig wires a SessionAgent. Store, Client and Tracker are
// required.
type SessionConfig struct {
	Store   *store.Store
	Client  StatusClient
	Tracker *Tracker

	// PollInterval is the shift-status polling period.
	PollInterval time.Duration
	// DeviceID accompanies registration calls.
	DeviceID string
	// Clock is replaceable for tests.
	Clock func() time.Time
}

// RegisterProfile is the operator-entered registration form.
type RegisterProfile struct {
	Name       string
	EmployeeID string
	Phone      string
}

// StatusSnapshot is a display-only view of the machine for a UI layer.
type StatusSnapshot struct {
	State       State
	Operator    *collector.Operator
	Asset       *collector.Asset
	ShiftStart  time.Time
	Elapsed     time.Duration
	LastPollAt  time.Time
	PollErrored bool
}

// SessionAgent drives screen transitions purely from periodic polling of the
// server-authoritative shift status, and starts/stops the Tracker as a side
// effect. One poll timer serves whichever of Waiting/Tracking is current, so
// the two polls are mutually exclusive by construction.
type SessionAgent struct {
	cfg SessionConfig

	mu          sync.Mutex
	state       State
	operator    *collector.Operator
	session     *store.SessionRecord
	lastPollAt  time.Time
	pollErrored bool
}

// NewSessionAgent builds a session machine in the Loading state.
func NewSessionAgent(cfg SessionConfig) (*SessionAgent, error) {
	if cfg.Store == nil {
		return nil, errors.New("session store cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("session status client cannot be nil")
	}
	if cfg.Tracker == nil {
		return nil, errors.New("session tracker cannot be nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.Duration("SHIFT_POLL_INTERVAL", 30*time.Second)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &SessionAgent{cfg: cfg, state: StateLoading}, nil
}

// State returns the current machine state.
func (a *SessionAgent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns display-only state for a UI layer.
func (a *SessionAgent) Snapshot() StatusSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := StatusSnapshot{
		State:       a.state,
		Operator:    a.operator,
		LastPollAt:  a.lastPollAt,
		PollErrored: a.pollErrored,
	}
	if a.session != nil {
		asset := a.session.Asset
		snap.Asset = &asset
		snap.ShiftStart = a.session.StartedAt
		snap.Elapsed = a.session.Elapsed(a.cfg.Clock())
	}
	return snap
}

// Load resolves the initial state from persisted records: an active session
// resumes tracking, a registered operator lands in Waiting, otherwise the
// operator must register.
func (a *SessionAgent) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateLoading {
		return errors.Errorf("load called in state %s", a.state)
	}

	record, err := a.cfg.Store.LoadSession(ctx)
	if err != nil {
		return err
	}
	operator, err := a.cfg.Store.LoadOperator(ctx)
	if err != nil {
		return err
	}

	if record != nil {
		if operator == nil {
			op := record.Operator
			operator = &op
		}
		a.operator = operator
		a.cfg.Tracker.Init(record.Asset.ID, operator.ID)
		if err := a.cfg.Tracker.StartTracking(ctx); err != nil {
			// The session record stays persisted; the next Waiting poll will
			// retry once the operator fixes permissions.
			log.Error().Err(err).Msg("resume tracking after restart failed")
			a.cfg.Tracker.StopTracking()
			a.state = StateWaiting
			return err
		}
		a.session = record
		a.state = StateTracking
		log.Info().
			Str("asset_id", record.Asset.ID).
			Time("shift_started", record.StartedAt).
			Dur("elapsed", record.Elapsed(a.cfg.Clock())).
			Msg("resumed active shift after restart")
		return nil
	}

	if operator != nil {
		a.operator = operator
		a.state = StateWaiting
		log.Info().Str("operator_id", operator.ID).Msg("registered operator found; waiting for shift")
		return nil
	}
	a.state = StateRegister
	return nil
}

// RegisterOperator performs first-time registration. Failure is returned
// synchronously and the machine does not advance.
func (a *SessionAgent) RegisterOperator(ctx context.Context, profile RegisterProfile) (*collector.Operator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRegister {
		return nil, errors.Errorf("registration not allowed in state %s", a.state)
	}
	operator, err := a.cfg.Client.Register(ctx, collector.RegisterRequest{
		Name:       profile.Name,
		EmployeeID: profile.EmployeeID,
		Phone:      profile.Phone,
		DeviceID:   a.cfg.DeviceID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "register operator failed")
	}
	if err := a.cfg.Store.SaveOperator(ctx, *operator); err != nil {
		return nil, err
	}
	a.operator = operator
	a.state = StateWaiting
	log.Info().Str("operator_id", operator.ID).Str("name", operator.Name).Msg("operator registered")

	// Waiting polls on entry; a shift assigned before registration completes
	// is picked up without waiting for the next tick.
	if err := a.pollWaitingLocked(ctx); err != nil {
		log.Warn().Err(err).Msg("post-registration shift poll failed")
	}
	return operator, nil
}

// Unregister removes the persisted operator record and returns the machine
// to Register. Refused while a shift is active.
func (a *SessionAgent) Unregister(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateTracking {
		return ErrShiftActive
	}
	if err := a.cfg.Store.DeleteOperator(ctx); err != nil {
		return err
	}
	a.operator = nil
	a.pollErrored = false
	a.state = StateRegister
	log.Info().Msg("operator unregistered")
	return nil
}

// PollOnce runs one shift-status poll for the current state. Waiting-poll
// failures set the display-only error flag; Tracking-poll failures are
// ignored so a network blip cannot flap an active shift back to Waiting.
func (a *SessionAgent) PollOnce(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case StateWaiting:
		return a.pollWaitingLocked(ctx)
	case StateTracking:
		return a.pollTrackingLocked(ctx)
	default:
		return nil
	}
}

func (a *SessionAgent) pollWaitingLocked(ctx context.Context) error {
	if a.operator == nil {
		return ErrNotRegistered
	}
	status, err := a.cfg.Client.ShiftStatus(ctx, a.operator.ID)
	if err != nil {
		log.Warn().Err(err).Msg("shift status poll failed while waiting")
		a.pollErrored = true
		return nil
	}
	a.lastPollAt = a.cfg.Clock()
	a.pollErrored = false
	if !status.OnShift || status.Asset == nil {
		return nil
	}
	return a.startShiftLocked(ctx, status)
}

func (a *SessionAgent) pollTrackingLocked(ctx context.Context) error {
	if a.operator == nil {
		return ErrNotRegistered
	}
	status, err := a.cfg.Client.ShiftStatus(ctx, a.operator.ID)
	if err != nil {
		log.Debug().Err(err).Msg("shift status poll failed while tracking; ignoring")
		return nil
	}
	a.lastPollAt = a.cfg.Clock()
	if status.OnShift {
		return nil
	}
	return a.endShiftLocked(ctx)
}

// startShiftLocked clears leftover pings from any previous shift, binds and
// starts the tracker, persists the new session, and enters Tracking.
func (a *SessionAgent) startShiftLocked(ctx context.Context, status *collector.ShiftStatus) error {
	if err := a.cfg.Store.ClearPings(ctx); err != nil {
		return err
	}
	a.cfg.Tracker.Init(status.Asset.ID, a.operator.ID)
	if err := a.cfg.Tracker.StartTracking(ctx); err != nil {
		a.cfg.Tracker.StopTracking()
		return errors.Wrap(err, "start tracking for new shift failed")
	}
	startedAt := a.cfg.Clock().UTC()
	if status.ShiftStartedAt != nil {
		startedAt = status.ShiftStartedAt.UTC()
	}
	record := store.SessionRecord{
		Operator:  *a.operator,
		Asset:     *status.Asset,
		StartedAt: startedAt,
	}
	if err := a.cfg.Store.SaveSession(ctx, record); err != nil {
		a.cfg.Tracker.StopTracking()
		return err
	}
	a.session = &record
	a.state = StateTracking
	log.Info().
		Str("asset_id", record.Asset.ID).
		Time("shift_started", record.StartedAt).
		Msg("shift started; tracking")
	return nil
}

// endShiftLocked stops tracking, discards pings left over from the ended
// shift, deletes the persisted session, and returns to Waiting.
func (a *SessionAgent) endShiftLocked(ctx context.Context) error {
	a.cfg.Tracker.StopTracking()
	if err := a.cfg.Store.ClearPings(ctx); err != nil {
		return err
	}
	if err := a.cfg.Store.DeleteSession(ctx); err != nil {
		return err
	}
	a.session = nil
	a.state = StateWaiting
	log.Info().Msg("shift ended; waiting for next assignment")
	return nil
}

// Run loads the initial state, then polls on the configured period until the
// context is cancelled. A mid-shift cancellation leaves the session record
// persisted so the next start resumes tracking.
func (a *SessionAgent) Run(ctx context.Context) error {
	if err := a.Load(ctx); err != nil {
		log.Error().Err(err).Msg("session load degraded; continuing")
	}

	// Fast-start: poll immediately instead of waiting for the first tick.
	if err := a.PollOnce(ctx); err != nil {
		log.Error().Err(err).Msg("initial shift poll failed")
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.cfg.Tracker.StopTracking()
			return nil
		case <-ticker.C:
			if err := a.PollOnce(ctx); err != nil {
				log.Error().Err(err).Msg("shift poll cycle failed")
			}
		}
	}
}
