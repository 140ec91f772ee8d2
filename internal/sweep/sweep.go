// Package sweep closes permission requests that stopped making progress:
// requests the permission administrator never answered time out, and
// accepted requests past their permission end are fulfilled. Validated
// requests whose send failed are sent again.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/infra"
	"github.com/gridshare/platform/internal/lifecycle"
)

// Advancer moves a request through the lifecycle.
type Advancer interface {
	Advance(ctx context.Context, permissionID string, op lifecycle.Operation, ev domain.PermissionEvent) error
	Get(ctx context.Context, permissionID string) (*domain.PermissionRequest, error)
}

// Resender sends a VALIDATED request to the permission administrator again.
type Resender interface {
	Resend(ctx context.Context, permissionID string) error
}

// Config holds sweep tuning. A zero StaleAfter or ResendAfter disables that
// part of the pass.
type Config struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	ResendAfter time.Duration
}

// Result counts the requests handled by one pass.
type Result struct {
	TimedOut int
	Expired  int
	Resent   int
}

// Sweeper periodically scans the status index.
type Sweeper struct {
	index    eventstore.StatusIndex
	advancer Advancer
	resender Resender
	cfg      Config
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *infra.Metrics
}

// New creates a sweeper. resender and metrics may be nil.
func New(index eventstore.StatusIndex, advancer Advancer, resender Resender, cfg Config, logger *slog.Logger, metrics *infra.Metrics) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Sweeper{
		index:    index,
		advancer: advancer,
		resender: resender,
		cfg:      cfg,
		clock:    time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start runs a pass every interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("stale request sweep started",
		"interval", s.cfg.Interval,
		"stale_after", s.cfg.StaleAfter,
		"resend_after", s.cfg.ResendAfter,
	)

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stale request sweep stopped")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("stale request sweep failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce performs one pass. Failures on single requests are logged and
// joined into the returned error; the pass continues with the next request.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.clock()
	var res Result
	var errs []error

	if s.cfg.StaleAfter > 0 {
		stale, err := s.index.LatestByStatus(ctx, domain.StatusSentToPermissionAdministrator, now.Add(-s.cfg.StaleAfter))
		if err != nil {
			return res, fmt.Errorf("find stale requests: %w", err)
		}
		for _, pid := range stale {
			if err := s.advancer.Advance(ctx, pid, lifecycle.OpTimeOut, domain.NewTimedOutEvent(pid)); err != nil {
				s.logger.Warn("time out request failed", "permission_id", pid, "error", err)
				errs = append(errs, err)
				continue
			}
			res.TimedOut++
			s.metrics.TimedOut()
		}
	}

	if s.resender != nil && s.cfg.ResendAfter > 0 {
		unsent, err := s.index.LatestByStatus(ctx, domain.StatusValidated, now.Add(-s.cfg.ResendAfter))
		if err != nil {
			return res, errors.Join(append(errs, fmt.Errorf("find unsent requests: %w", err))...)
		}
		for _, pid := range unsent {
			if err := s.resender.Resend(ctx, pid); err != nil {
				s.logger.Warn("resend request failed", "permission_id", pid, "error", err)
				errs = append(errs, err)
				continue
			}
			res.Resent++
		}
	}

	accepted, err := s.index.LatestByStatus(ctx, domain.StatusAccepted, now)
	if err != nil {
		return res, errors.Join(append(errs, fmt.Errorf("find accepted requests: %w", err))...)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, pid := range accepted {
		pr, err := s.advancer.Get(ctx, pid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pr.End.IsZero() || !pr.End.Before(today) {
			continue
		}
		if err := s.advancer.Advance(ctx, pid, lifecycle.OpTimeLimit, domain.NewFulfilledEvent(pid)); err != nil {
			s.logger.Warn("expire request failed", "permission_id", pid, "error", err)
			errs = append(errs, err)
			continue
		}
		res.Expired++
	}

	if res.TimedOut > 0 || res.Expired > 0 || res.Resent > 0 {
		s.logger.Info("stale request sweep handled requests",
			"timed_out", res.TimedOut,
			"expired", res.Expired,
			"resent", res.Resent,
		)
	}
	return res, errors.Join(errs...)
}
