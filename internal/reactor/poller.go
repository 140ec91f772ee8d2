package reactor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/outbox"
)

// Fetcher retrieves metered data for a request and returns the end of the
// newest reading it received.
type Fetcher interface {
	Fetch(ctx context.Context, pr *domain.PermissionRequest) (time.Time, error)
}

// AsyncPoller runs fetches in the background. When a fetch returns, the
// reading is committed through a fresh Outbox.Commit on the fetch goroutine,
// so follow-up handlers never run on the stack that requested the poll.
type AsyncPoller struct {
	base    context.Context
	fetcher Fetcher
	outbox  outbox.Committer
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncPoller ties background fetches to base; cancelling base stops
// them. timeout bounds a single fetch.
func NewAsyncPoller(base context.Context, fetcher Fetcher, ob outbox.Committer, timeout time.Duration, logger *slog.Logger) *AsyncPoller {
	return &AsyncPoller{base: base, fetcher: fetcher, outbox: ob, timeout: timeout, logger: logger}
}

// Poll schedules a fetch and returns immediately.
func (p *AsyncPoller) Poll(_ context.Context, pr *domain.PermissionRequest) error {
	snapshot := *pr
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(&snapshot)
	}()
	return nil
}

func (p *AsyncPoller) run(pr *domain.PermissionRequest) {
	ctx := p.base
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	readingEnd, err := p.fetcher.Fetch(ctx, pr)
	if err != nil {
		p.logger.Error("fetch failed", "permission_id", pr.PermissionID, "error", err)
		return
	}
	if readingEnd.IsZero() {
		p.logger.Debug("fetch returned no readings", "permission_id", pr.PermissionID)
		return
	}

	if err := p.outbox.Commit(p.base, domain.NewMeterReadingObservedEvent(pr.PermissionID, readingEnd)); err != nil {
		p.logger.Error("commit meter reading failed", "permission_id", pr.PermissionID, "error", err)
	}
}

// Wait blocks until every scheduled fetch has finished.
func (p *AsyncPoller) Wait() {
	p.wg.Wait()
}
