package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// LocationProvider is the seam to the host platform's positioning services.
// Subscribe registers a continuous fix stream that keeps reporting while the
// process is backgrounded; providers that cannot do that return
// ErrCapabilityUnavailable and the tracker polls Current instead.
type LocationProvider interface {
	RequestPermission(ctx context.Context, scope PermissionScope) error
	Subscribe(ctx context.Context, handle func(Sample)) (stop func(), err error)
	Current(ctx context.Context) (Sample, error)
}

// acquisitionMode is one of the two interchangeable ways fixes reach the
// per-sample path. Selected once at start time.
type acquisitionMode interface {
	Start(ctx context.Context, handle func(Sample)) error
	Stop()
	Background() bool
}

// backgroundAcquisition relays the provider's continuous subscription.
type backgroundAcquisition struct {
	provider LocationProvider
	stop     func()
}

func (b *backgroundAcquisition) Start(ctx context.Context, handle func(Sample)) error {
	stop, err := b.provider.Subscribe(ctx, handle)
	if err != nil {
		return err
	}
	b.stop = stop
	return nil
}

func (b *backgroundAcquisition) Stop() {
	if b.stop != nil {
		b.stop()
		b.stop = nil
	}
}

func (b *backgroundAcquisition) Background() bool { return true }

// foregroundAcquisition polls the provider for a one-shot fix on a fixed
// interval. Fixes only arrive while the process keeps this loop scheduled.
type foregroundAcquisition struct {
	provider LocationProvider
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func (f *foregroundAcquisition) Start(ctx context.Context, handle func(Sample)) error {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample, err := f.provider.Current(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.Debug().Err(err).Msg("foreground fix poll failed")
					}
					continue
				}
				handle(sample)
			}
		}
	}()
	return nil
}

func (f *foregroundAcquisition) Stop() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.wg.Wait()
}

func (f *foregroundAcquisition) Background() bool { return false }
