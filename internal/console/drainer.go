package console

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/fa15bridge/internal/groutine"
)

// DefaultDrainInterval is how often the drainer empties the collector.
const DefaultDrainInterval = 50 * time.Millisecond

// Drainer periodically renders everything a Collector has buffered.
// Stop it with Cancel and wait for the final drain with Wait.
type Drainer struct {
	cancelOnce sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup
}

// Cancel signals the drainer to render what is left and exit.
func (d *Drainer) Cancel() {
	d.cancelOnce.Do(func() {
		close(d.stop)
	})
}

// Wait blocks until the drainer goroutine has exited.
func (d *Drainer) Wait() {
	d.wg.Wait()
}

// NewDrainer starts a goroutine draining c into r every interval until ctx is done or Cancel is called.
func NewDrainer(ctx context.Context, c *Collector, r *Renderer, interval time.Duration, logger *logrus.Logger) *Drainer {
	if interval <= 0 {
		interval = DefaultDrainInterval
	}

	d := &Drainer{stop: make(chan struct{})}

	render := func(rec Record) {
		if err := r.Render(rec); err != nil {
			logger.WithError(err).Warn("Console drainer: write failed")
		}
	}

	drain := func(reason string) {
		n, err := c.Drain(render)
		if err != nil {
			logger.WithError(err).Warn("Console drainer: drain failed")
		}
		if reason != "" {
			logger.WithFields(logrus.Fields{
				"reason":  reason,
				"drained": n,
			}).Debug("Console drainer: final drain completed")
		}
	}

	d.wg.Add(1)
	groutine.Go(ctx, "console-drainer", func(ctx context.Context) {
		defer d.wg.Done()
		defer groutine.Recover(ctx, logger, nil)
		defer logger.Debugf("%s: exiting", groutine.GetName(ctx))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				drain("")
			case <-d.stop:
				drain("stop")
				return
			case <-ctx.Done():
				drain("context-done")
				return
			}
		}
	})

	return d
}
