package worker

import (
	"context"
	"time"

	"github.com/Fi44er/giftcase/internal/service"
	"github.com/Fi44er/giftcase/utils"
)

type Reconciler interface {
	ReconcileDeposits(ctx context.Context) (*service.ReconcileReport, error)
}

// DepositPoller drives deposit reconciliation off the request path.
type DepositPoller struct {
	reconciler Reconciler
	logger     *utils.Logger
	timeout    time.Duration
}

func NewDepositPoller(r Reconciler, logger *utils.Logger) *DepositPoller {
	return &DepositPoller{reconciler: r, logger: logger, timeout: time.Minute}
}

// Start blocks until ctx is done, running one pass immediately and then every interval.
func (p *DepositPoller) Start(ctx context.Context, interval time.Duration) {
	p.logger.Infof("👷 Deposit poller started, interval %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.RunOnce(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("Deposit poller stopped")
			return
		case <-ticker.C:
		}
	}
}

func (p *DepositPoller) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	report, err := p.reconciler.ReconcileDeposits(ctx)
	if err != nil {
		p.logger.Warnf("Deposit reconciliation pass failed: %v", err)
	}
	if report == nil {
		return
	}
	if report.Matched > 0 || report.Expired > 0 {
		p.logger.Infof("Deposits reconciled: %d pending, %d matched, %d expired", report.Pending, report.Matched, report.Expired)
	} else {
		p.logger.Debugf("Deposits reconciled: %d pending, nothing changed", report.Pending)
	}
}
