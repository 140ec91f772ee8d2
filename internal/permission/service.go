package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gridshare/platform/internal/dataneed"
	"github.com/gridshare/platform/internal/domain"
	"github.com/gridshare/platform/internal/lifecycle"
	"github.com/gridshare/platform/internal/outbox"
)

// Calculator evaluates a data need for the local region.
type Calculator interface {
	CalculateByID(id string, reference time.Time) dataneed.Result
	RegionID() string
}

// Service opens permission requests and moves them through the lifecycle.
type Service struct {
	repo   Getter
	outbox outbox.Committer
	calc   Calculator
	logger *slog.Logger
	clock  func() time.Time
	newID  func() string
}

// NewService creates a Service.
func NewService(repo Getter, ob outbox.Committer, calc Calculator, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		outbox: ob,
		calc:   calc,
		logger: logger,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

// Create commits CREATED and then VALIDATED or MALFORMED. A malformed
// request is stored and also reported as a domain.ErrMalformed validation
// error carrying the attribute errors.
//
// A handler failure after an event was stored does not fail Create: the
// request is returned in the status it reached, and a VALIDATED request
// that could not be sent is picked up again by the sweep.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.PermissionRequest, error) {
	pid := s.newID()

	created := domain.NewCreatedEvent(pid, req.DataNeedID, req.ConnectionID)
	created.RegionID = req.RegionID
	if created.RegionID == "" {
		created.RegionID = s.calc.RegionID()
	}
	if err := s.stored(pid, s.outbox.Commit(ctx, created)); err != nil {
		return nil, err
	}

	next, errs := s.validate(pid, req)
	if err := s.stored(pid, s.Advance(ctx, pid, lifecycle.OpValidate, next)); err != nil {
		return nil, err
	}

	pr, err := s.repo.GetByPermissionID(ctx, pid)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		s.logger.Info("permission request malformed", "permission_id", pid, "errors", len(errs))
		return pr, domain.ErrMalformed(pid, errs)
	}
	s.logger.Info("permission request validated", "permission_id", pid, "data_need_id", req.DataNeedID)
	return pr, nil
}

// stored drops a dispatch error for an event that reached the log.
func (s *Service) stored(pid string, err error) error {
	var de *outbox.DispatchError
	if !errors.As(err, &de) {
		return err
	}
	s.logger.Warn("permission event stored but not fully handled",
		"permission_id", pid,
		"event_type", de.EventType,
		"event_id", de.EventID,
		"error", de.Err,
	)
	return nil
}

func (s *Service) validate(pid string, req domain.CreateRequest) (domain.PermissionEvent, []domain.AttributeError) {
	if errs := req.Validate(); len(errs) > 0 {
		return domain.NewMalformedEvent(pid, errs), errs
	}

	var errs []domain.AttributeError
	switch r := s.calc.CalculateByID(req.DataNeedID, s.clock()).(type) {
	case dataneed.ValidatedHistoricalDataResult:
		energy := r.Energy
		return domain.NewValidatedEvent(pid, r.Permission, &energy, r.Granularities[0]), nil
	case dataneed.AccountingPointResult:
		return domain.NewValidatedEvent(pid, r.Permission, nil, ""), nil
	case dataneed.AiidaResult:
		if r.Energy == nil {
			errs = append(errs, domain.AttributeError{Name: "dataNeedId", Message: "data need has no data window"})
			break
		}
		return domain.NewValidatedEvent(pid, *r.Energy, r.Energy, ""), nil
	case dataneed.NotFoundResult:
		errs = append(errs, domain.AttributeError{Name: "dataNeedId", Message: "unknown data need"})
	case dataneed.NotSupportedResult:
		errs = append(errs, domain.AttributeError{Name: "dataNeedId", Message: r.Message})
	default:
		errs = append(errs, domain.AttributeError{Name: "dataNeedId", Message: fmt.Sprintf("unexpected calculation result %T", r)})
	}
	return domain.NewMalformedEvent(pid, errs), errs
}

// Advance checks that op may move the request to ev's status and commits
// ev. Illegal operations return a *lifecycle.TransitionError and nothing is
// committed.
func (s *Service) Advance(ctx context.Context, permissionID string, op lifecycle.Operation, ev domain.PermissionEvent) error {
	if ev.PermissionID() != permissionID {
		return domain.ErrValidation(fmt.Sprintf("event belongs to %s, not %s", ev.PermissionID(), permissionID))
	}

	pr, err := s.repo.GetByPermissionID(ctx, permissionID)
	if err != nil {
		return err
	}

	if _, err := lifecycle.StateOf(pr.Status).NextWithOutcome(op, ev.Status()); err != nil {
		s.logger.Warn("illegal lifecycle operation",
			"permission_id", permissionID,
			"operation", op,
			"status", pr.Status,
			"target", ev.Status(),
			"error", err,
		)
		return err
	}
	return s.outbox.Commit(ctx, ev)
}

// Get returns the projection of a permission request.
func (s *Service) Get(ctx context.Context, permissionID string) (*domain.PermissionRequest, error) {
	return s.repo.GetByPermissionID(ctx, permissionID)
}
