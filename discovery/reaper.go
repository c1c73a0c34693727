package discovery

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reaper evicts peers that stopped announcing.
type Reaper struct {
	cfg      Config
	registry *Registry
	events   *EventChannel
	log      logrus.FieldLogger
}

func newReaper(cfg Config, registry *Registry, events *EventChannel) *Reaper {
	return &Reaper{
		cfg:      cfg,
		registry: registry,
		events:   events,
		log:      cfg.Logger.WithField("component", "reaper"),
	}
}

// Run sweeps every ReapInterval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Sweep evicts stale entries and publishes one Leave per evicted id.
// The registry lock is released before anything is published.
func (r *Reaper) Sweep(ctx context.Context) error {
	return r.events.Emit(ctx, func() []Event {
		evicted := r.registry.Expire(r.cfg.now(), r.cfg.PeerTimeout)
		if len(evicted) == 0 {
			return nil
		}

		out := make([]Event, 0, len(evicted))
		for _, id := range evicted {
			r.log.WithFields(logrus.Fields{
				"peer":    id.String(),
				"timeout": r.cfg.PeerTimeout.String(),
			}).Info("peer left")
			out = append(out, LeaveEvent(id))
		}
		return out
	})
}
