package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe periodically checks the parsing service and logs availability changes.
type Probe struct {
	pinger Pinger
	cron   *cron.Cron
	down   atomic.Bool
	logger *zap.Logger
}

func NewProbe(pinger Pinger, logger *zap.Logger) *Probe {
	return &Probe{
		pinger: pinger,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules Check on spec. An empty spec disables the probe.
func (p *Probe) Start(spec string) error {
	if spec == "" {
		p.logger.Info("Backend health probe disabled")
		return nil
	}

	if _, err := p.cron.AddFunc(spec, func() { p.Check(context.Background()) }); err != nil {
		return fmt.Errorf("invalid health check schedule %q: %w", spec, err)
	}
	p.cron.Start()
	p.logger.Info("Backend health probe started", zap.String("schedule", spec))
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (p *Probe) Stop() {
	<-p.cron.Stop().Done()
}

// Check pings once and reports whether the service is reachable.
func (p *Probe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := p.pinger.Ping(ctx); err != nil {
		if !p.down.Swap(true) {
			p.logger.Warn("Parse service is unreachable", zap.Error(err))
		}
		return false
	}

	if p.down.Swap(false) {
		p.logger.Info("Parse service is reachable again")
	}
	return true
}
