package device

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/devicehub/repository/device"
	"github.com/desain-gratis/devicehub/types/entity"
)

// Monitor flips devices to offline when they have been silent longer than
// their class's offline timeout. Classes with a zero timeout are exempt.
type Monitor struct {
	repo     device.Repository
	classes  device.ClassRepository
	interval time.Duration
}

func NewMonitor(repo device.Repository, classes device.ClassRepository, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		repo:     repo,
		classes:  classes,
		interval: interval,
	}
}

// Run sweeps until the context is cancelled. Cancellation is a clean stop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep is one pass over all devices. A repo failure skips the pass; the next
// tick retries.
func (m *Monitor) Sweep(ctx context.Context) {
	devices, err := m.repo.List(ctx)
	if err != nil {
		log.Err(err.Err()).Msgf("offline sweep: failed to list devices")
		return
	}

	now := time.Now().UTC()
	for _, d := range devices {
		if d.Status == entity.DeviceStatusOffline || d.DeviceClassID == "" {
			continue
		}

		class, errUC := m.classes.GetByID(ctx, d.DeviceClassID)
		if errUC != nil || class.OfflineTimeout <= 0 {
			continue
		}

		deadline := d.LastOnline.Add(time.Duration(class.OfflineTimeout) * time.Second)
		if now.Before(deadline) {
			continue
		}

		d.Status = entity.DeviceStatusOffline
		if _, errUC := m.repo.Upsert(ctx, d); errUC != nil {
			log.Err(errUC.Err()).Msgf("offline sweep: failed to mark device %v offline", d.GUID)
			continue
		}
		log.Info().Msgf("device %v marked offline, silent since %v", d.GUID, d.LastOnline)
	}
}
