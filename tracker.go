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

// Deliverer sends pings to the collector. *collector.Client satisfies it.
type Deliverer interface {
	SendPing(ctx context.Context, ping collector.Ping) error
	SendBatch(ctx context.Context, pings []collector.Ping) error
}

// Connectivity answers whether the collector is reachable right now. The
// flusher bails out early when it is not, instead of burning a timeout per
// batch.
type Connectivity interface {
	Reachable(ctx context.Context) bool
}

// TrackerConfig wires a Tracker's collaborators. Store, Deliverer and
// Provider are required; the rest default from the environment.
type TrackerConfig struct {
	Store        *store.Store
	Deliverer    Deliverer
	Connectivity Connectivity
	Provider     LocationProvider

	// FlushInterval is the offline-queue flush period.
	FlushInterval time.Duration
	// FlushBatchSize caps pings per batch request.
	FlushBatchSize int
	// SampleInterval is the foreground-only polling cadence.
	SampleInterval time.Duration
	// UpdateBuffer sizes the display updates channel.
	UpdateBuffer int
}

// Tracker owns sample acquisition, the per-sample delivery path, and the
// offline-queue flusher. Each Tracker is self-contained: its identifier
// bindings, queue store and timers are instance state, never globals.
type Tracker struct {
	cfg TrackerConfig

	mu              sync.Mutex
	assetID         string
	operatorID      string
	mode            acquisitionMode
	usingBackground bool
	flushCancel     context.CancelFunc
	flushDone       chan struct{}

	updates chan SampleUpdate
}

// NewTracker builds a Tracker. Defaults: 30s flush period, batches of 50,
// 5s foreground sampling, all env-overridable.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Store == nil {
		return nil, errors.New("tracker store cannot be nil")
	}
	if cfg.Deliverer == nil {
		return nil, errors.New("tracker deliverer cannot be nil")
	}
	if cfg.Provider == nil {
		return nil, errors.New("tracker location provider cannot be nil")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.Duration("QUEUE_FLUSH_INTERVAL", 30*time.Second)
	}
	if cfg.FlushBatchSize <= 0 {
		cfg.FlushBatchSize = config.Int("QUEUE_FLUSH_BATCH", 50)
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = config.Duration("FOREGROUND_SAMPLE_INTERVAL", 5*time.Second)
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 16
	}
	if cfg.Connectivity == nil {
		cfg.Connectivity = alwaysReachable{}
	}
	return &Tracker{
		cfg:     cfg,
		updates: make(chan SampleUpdate, cfg.UpdateBuffer),
	}, nil
}

type alwaysReachable struct{}

func (alwaysReachable) Reachable(ctx context.Context) bool { return true }

// Init binds the identifiers stamped onto every subsequent sample and
// (re)starts the flusher. Idempotent: a second call replaces the binding and
// restarts the flusher without leaking the previous timer.
func (t *Tracker) Init(assetID, operatorID string) {
	t.mu.Lock()
	t.assetID = assetID
	t.operatorID = operatorID
	t.mu.Unlock()
	t.restartFlusher()
	log.Info().Str("asset_id", assetID).Str("operator_id", operatorID).Msg("tracker bound")
}

// StartTracking requests positioning permissions and begins acquisition.
// When the provider cannot keep reporting in the background it falls back to
// foreground-only polling; that is an operating mode, not an error, and is
// visible via UsingBackgroundMode.
func (t *Tracker) StartTracking(ctx context.Context) error {
	t.mu.Lock()
	if t.mode != nil {
		t.mu.Unlock()
		log.Debug().Msg("start tracking ignored: already tracking")
		return nil
	}
	t.mu.Unlock()

	if err := t.cfg.Provider.RequestPermission(ctx, PermissionForeground); err != nil {
		log.Warn().Err(err).Msg("foreground location permission refused")
		return &PermissionDeniedError{Scope: PermissionForeground}
	}
	if err := t.cfg.Provider.RequestPermission(ctx, PermissionBackground); err != nil {
		log.Warn().Err(err).Msg("background location permission refused")
		return &PermissionDeniedError{Scope: PermissionBackground, Remediation: BackgroundRemediation}
	}

	mode := acquisitionMode(&backgroundAcquisition{provider: t.cfg.Provider})
	background := true
	err := mode.Start(ctx, t.handleSample)
	if errors.Is(err, ErrCapabilityUnavailable) {
		log.Info().Msg("background acquisition unavailable; falling back to foreground-only mode")
		mode = &foregroundAcquisition{provider: t.cfg.Provider, interval: t.cfg.SampleInterval}
		background = false
		err = mode.Start(ctx, t.handleSample)
	}
	if err != nil {
		return errors.Wrap(err, "start acquisition failed")
	}

	t.mu.Lock()
	t.mode = mode
	t.usingBackground = background
	t.mu.Unlock()
	log.Info().Bool("background_mode", background).Msg("tracking started")
	return nil
}

// StopTracking clears the identifier binding, stops the flusher timer and
// deregisters the active acquisition mode. Safe to call when not tracking.
// The binding is cleared first, so a sample or flush racing the teardown hits
// the unbound guard instead of stale identifiers.
func (t *Tracker) StopTracking() {
	t.mu.Lock()
	mode := t.mode
	t.mode = nil
	t.usingBackground = false
	t.assetID = ""
	t.operatorID = ""
	t.mu.Unlock()

	t.stopFlusher()
	if mode != nil {
		mode.Stop()
		log.Info().Msg("tracking stopped")
	}
}

// UsingBackgroundMode reports whether the active acquisition mode keeps
// reporting while the process is not in the foreground.
func (t *Tracker) UsingBackgroundMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode != nil && t.usingBackground
}

// Updates is the stream of per-fix display updates. The channel is buffered
// and drops the oldest update when full; a slow or absent subscriber can
// never stall the sample path.
func (t *Tracker) Updates() <-chan SampleUpdate {
	return t.updates
}

// QueueDepth returns the number of undelivered pings currently queued.
func (t *Tracker) QueueDepth(ctx context.Context) (int, error) {
	return t.cfg.Store.PingCount(ctx)
}

// handleSample is the single per-fix path shared by both acquisition modes,
// invoked in acquisition order.
func (t *Tracker) handleSample(sample Sample) {
	t.mu.Lock()
	assetID, operatorID := t.assetID, t.operatorID
	t.mu.Unlock()
	if assetID == "" || operatorID == "" {
		// A fix can arrive after StopTracking but before the mode fully
		// deregisters; it must not be stamped with stale identifiers.
		log.Debug().Msg("sample dropped: no identifiers bound")
		return
	}

	accepted := AccuracyAcceptable(sample.AccuracyM)
	t.publish(SampleUpdate{Sample: sample, Accepted: accepted})
	if !accepted {
		log.Debug().Float64("accuracy_m", *sample.AccuracyM).Msg("sample rejected by accuracy filter")
		return
	}

	ping := sample.ping(assetID, operatorID)
	if err := t.cfg.Deliverer.SendPing(context.Background(), ping); err != nil {
		log.Debug().Err(err).Msg("immediate delivery failed; queueing ping")
		if appendErr := t.cfg.Store.AppendPing(context.Background(), ping); appendErr != nil {
			log.Error().Err(appendErr).Msg("queue ping after delivery failure failed")
		}
	}
}

func (t *Tracker) publish(update SampleUpdate) {
	select {
	case t.updates <- update:
		return
	default:
	}
	// Full: drop the oldest update, then try once more.
	select {
	case <-t.updates:
	default:
	}
	select {
	case t.updates <- update:
	default:
	}
}

func (t *Tracker) restartFlusher() {
	t.stopFlusher()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.mu.Lock()
	t.flushCancel = cancel
	t.flushDone = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := t.FlushOnce(ctx); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("queue flush cycle failed")
				}
			}
		}
	}()
}

func (t *Tracker) stopFlusher() {
	t.mu.Lock()
	cancel := t.flushCancel
	done := t.flushDone
	t.flushCancel = nil
	t.flushDone = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// FlushOnce drains the offline queue through the batch endpoint. Batches go
// out sequentially in insertion order; the first failure stops the cycle so
// the unsent suffix stays queued. Only the prefix confirmed sent is removed,
// so pings appended mid-flush are never lost.
func (t *Tracker) FlushOnce(ctx context.Context) error {
	t.mu.Lock()
	bound := t.assetID != "" && t.operatorID != ""
	t.mu.Unlock()
	if !bound {
		log.Debug().Msg("flush skipped: no identifiers bound")
		return nil
	}
	if !t.cfg.Connectivity.Reachable(ctx) {
		log.Debug().Msg("flush skipped: collector unreachable")
		return nil
	}

	queued, err := t.cfg.Store.DrainPings(ctx, 0)
	if err != nil {
		return err
	}
	if len(queued) == 0 {
		return nil
	}

	var confirmedThrough int64
	var sendErr error
	for start := 0; start < len(queued); start += t.cfg.FlushBatchSize {
		end := start + t.cfg.FlushBatchSize
		if end > len(queued) {
			end = len(queued)
		}
		batch := queued[start:end]
		pings := make([]collector.Ping, len(batch))
		for i, qp := range batch {
			pings[i] = qp.Ping
		}
		if err := t.cfg.Deliverer.SendBatch(ctx, pings); err != nil {
			sendErr = errors.Wrapf(err, "flush batch of %d pings failed", len(pings))
			break
		}
		confirmedThrough = batch[len(batch)-1].ID
	}

	if confirmedThrough > 0 {
		if err := t.cfg.Store.RemovePingsThrough(ctx, confirmedThrough); err != nil {
			return err
		}
		log.Info().Int("queued", len(queued)).Int64("confirmed_through", confirmedThrough).Msg("flushed queued pings")
	}
	return sendErr
}
