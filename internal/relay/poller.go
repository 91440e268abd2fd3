package relay

import (
	"context"
	"time"
)

// Poller is the background status poller: on a fixed interval it broadcasts
// an app/state request to every registered device, prompting state refreshes
// without controller involvement. Controllers never receive poll traffic.
//
// The poller only reads the registry; it never mutates hub state.
type Poller struct {
	registry *Registry
	interval time.Duration
	logger   Logger
}

// NewPoller creates a status poller with the given broadcast interval.
func NewPoller(registry *Registry, interval time.Duration) *Poller {
	return &Poller{
		registry: registry,
		interval: interval,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// Run broadcasts a state request every interval until ctx is cancelled.
// It blocks; callers run it in a goroutine and await its return during
// shutdown (the hub must not exit with a poll half-issued).
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("status poller started", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("status poller stopped")
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll sends one state request to each registered device. An empty registry
// is skipped entirely; per-target send failures are isolated and logged.
func (p *Poller) poll() {
	devices := p.registry.Connections()
	if len(devices) == 0 {
		return
	}

	p.logger.Debug("sending status request to devices", "devices", len(devices))

	for _, device := range devices {
		if err := device.Send(statePollMessage); err != nil {
			p.logger.Debug("status request send failed", "conn", device.ID(), "error", err)
		}
	}
}
