package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ReplayProvider feeds fixes from a JSONL file, one object per line using
// the collector wire field names. It stands in for a platform positioning
// service on hosts that have none, and doubles as a deterministic source for
// local runs.
type ReplayProvider struct {
	path           string
	interval       time.Duration
	foregroundOnly bool

	mu      sync.Mutex
	file    *os.File
	scanner *bufio.Scanner
}

// NewReplayProvider reads fixes from path at the given cadence. With
// foregroundOnly set, Subscribe reports the capability as unavailable so the
// tracker exercises its foreground fallback.
func NewReplayProvider(path string, interval time.Duration, foregroundOnly bool) *ReplayProvider {
	if interval <= 0 {
		interval = time.Second
	}
	return &ReplayProvider{path: path, interval: interval, foregroundOnly: foregroundOnly}
}

// RequestPermission always grants; a file needs no platform permission.
func (p *ReplayProvider) RequestPermission(ctx context.Context, scope PermissionScope) error {
	return nil
}

// Subscribe streams the file's fixes on the provider's cadence.
func (p *ReplayProvider) Subscribe(ctx context.Context, handle func(Sample)) (func(), error) {
	if p.foregroundOnly {
		return nil, ErrCapabilityUnavailable
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample, err := p.next()
				if err != nil {
					if !errors.Is(err, errReplayExhausted) {
						log.Warn().Err(err).Msg("replay feed read failed")
					}
					return
				}
				handle(sample)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

// Current returns the next fix from the feed.
func (p *ReplayProvider) Current(ctx context.Context) (Sample, error) {
	return p.next()
}

var errReplayExhausted = errors.New("replay feed exhausted")

func (p *ReplayProvider) next() (Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scanner == nil {
		file, err := os.Open(p.path)
		if err != nil {
			return Sample{}, errors.Wrap(err, "open replay feed")
		}
		p.file = file
		p.scanner = bufio.NewScanner(file)
	}
	for p.scanner.Scan() {
		line := p.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fix struct {
			Latitude   float64    `json:"latitude"`
			Longitude  float64    `json:"longitude"`
			AccuracyM  *float64   `json:"accuracyMeters"`
			SpeedMps   *float64   `json:"speedMps"`
			HeadingDeg *float64   `json:"headingDeg"`
			Altitude   *float64   `json:"altitude"`
			CapturedAt *time.Time `json:"capturedAt"`
		}
		if err := json.Unmarshal(line, &fix); err != nil {
			log.Warn().Err(err).Msg("skipping malformed replay feed line")
			continue
		}
		capturedAt := time.Now().UTC()
		if fix.CapturedAt != nil {
			capturedAt = fix.CapturedAt.UTC()
		}
		return Sample{
			Latitude:   fix.Latitude,
			Longitude:  fix.Longitude,
			AccuracyM:  fix.AccuracyM,
			SpeedMps:   fix.SpeedMps,
			HeadingDeg: fix.HeadingDeg,
			Altitude:   fix.Altitude,
			CapturedAt: capturedAt,
		}, nil
	}
	if err := p.scanner.Err(); err != nil {
		return Sample{}, errors.Wrap(err, "read replay feed")
	}
	p.file.Close()
	return Sample{}, errReplayExhausted
}
