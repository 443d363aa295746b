package adjustment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/observability"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

const recentLimit = 5

// LowStockNotifier is told about items that end a decision at or below their minimum.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, item inventory.Item) error
}

// AuditRecorder persists decision audit trails.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard claims client supplied request keys.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

const idempotencyModule = "adjustment.create"

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	LowStock    LowStockNotifier
	Audit       AuditRecorder
	Idempotency IdempotencyGuard
}

// Service implements the adjustment request workflow.
type Service struct {
	repo     RepositoryPort
	logger   *slog.Logger
	metrics  *observability.Metrics
	lowStock LowStockNotifier
	audit    AuditRecorder
	idem     IdempotencyGuard
	now      func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		logger:   logger,
		metrics:  cfg.Metrics,
		lowStock: cfg.LowStock,
		audit:    cfg.Audit,
		idem:     cfg.Idempotency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create raises a pending request. No ledger mutation happens until approval.
// A repeated IdempotencyKey from the same user fails with a conflict.
func (s *Service) Create(ctx context.Context, caller identity.Caller, in CreateInput) (view RequestView, err error) {
	if caller.Kind() != identity.KindCompanyUser {
		return RequestView{}, ErrCompanyUserOnly
	}
	if err := in.validate(); err != nil {
		return RequestView{}, err
	}
	if s.idem != nil && in.IdempotencyKey != "" {
		key := caller.ID() + ":" + in.IdempotencyKey
		if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return RequestView{}, err
		}
		defer func() {
			if err == nil {
				return
			}
			if delErr := s.idem.Delete(ctx, key, idempotencyModule); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}()
	}
	item, err := s.repo.GetItem(ctx, in.ItemID)
	if err != nil {
		return RequestView{}, err
	}
	if item.CompanyID != caller.CompanyID() {
		return RequestView{}, ErrItemAccess
	}
	if in.MovementType.Subtracts() && in.Quantity > item.CurrentQuantity {
		return RequestView{}, inventory.ErrInsufficientStock
	}

	now := s.now()
	req := Request{
		ID:                 uuid.NewString(),
		ItemID:             item.ID,
		CompanyID:          item.CompanyID,
		RequestedBy:        caller.ID(),
		MovementType:       in.MovementType,
		Quantity:           in.Quantity,
		UnitCost:           in.UnitCost,
		ToStockID:          in.ToStockID,
		DestinationID:      in.DestinationID,
		DestinationDetails: in.DestinationDetails,
		MovementDate:       in.MovementDate,
		ReferenceNumber:    in.ReferenceNumber,
		Notes:              in.Notes,
		Reason:             strings.TrimSpace(in.Reason),
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.MovementDate.IsZero() {
		req.MovementDate = now
	}
	if in.UnitCost.Valid {
		req.TotalCost = decimal.NewNullDecimal(in.UnitCost.Decimal.Mul(decimal.NewFromFloat(in.Quantity)))
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return RequestView{}, err
	}
	s.record(ctx, caller, "adjustment.create", req.ID, map[string]any{
		"item_id":       req.ItemID,
		"movement_type": string(req.MovementType),
		"quantity":      req.Quantity,
	})
	return s.repo.Get(ctx, req.ID)
}

// Approve commits the requested movement and marks the request approved, all
// in one transaction. Stock is re-validated against the current quantity.
func (s *Service) Approve(ctx context.Context, caller identity.Caller, id string) (RequestView, error) {
	var item inventory.Item
	var locked Locked
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		locked, err = s.lockForDecision(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		ledger := tx.Inventory()
		item, err = ledger.GetItemForUpdate(ctx, locked.ItemID)
		if err != nil {
			return err
		}
		movement := inventory.Movement{
			ID:                 uuid.NewString(),
			ItemID:             item.ID,
			Type:               locked.MovementType,
			Quantity:           locked.Quantity,
			UnitCost:           locked.UnitCost,
			TotalCost:          locked.TotalCost,
			ToStockID:          locked.ToStockID,
			DestinationID:      locked.DestinationID,
			DestinationDetails: locked.DestinationDetails,
			MovementDate:       locked.MovementDate,
			ReferenceNumber:    locked.ReferenceNumber,
			Notes:              approvalNote(locked.Notes, locked.ID),
			CreatedBy:          caller.ID(),
			IsClient:           caller.Kind() == identity.KindCompany,
		}
		if movement.Type.Subtracts() {
			movement.FromStockID = &item.StockID
		}
		quantity, err := inventory.Post(ctx, ledger, item, movement)
		if err != nil {
			return err
		}
		item.CurrentQuantity = quantity
		return tx.MarkApproved(ctx, locked.ID, caller.ID(), s.now(), movement.ID)
	})
	s.observe("approve", err)
	if err != nil {
		return RequestView{}, err
	}

	s.record(ctx, caller, "adjustment.approve", id, map[string]any{
		"item_id":      item.ID,
		"new_quantity": item.CurrentQuantity,
	})
	if s.lowStock != nil && item.LowStock() {
		if err := s.lowStock.NotifyLowStock(ctx, item); err != nil {
			s.logger.Warn("enqueue low stock alert", slog.String("item_id", item.ID), slog.Any("error", err))
		} else {
			s.metrics.LowStockEnqueued()
		}
	}
	return s.repo.Get(ctx, id)
}

// Reject closes a pending request without touching the ledger.
func (s *Service) Reject(ctx context.Context, caller identity.Caller, id, reason string) (RequestView, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		s.observe("reject", ErrRejectionReasonRequired)
		return RequestView{}, ErrRejectionReasonRequired
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := s.lockForDecision(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		return tx.MarkRejected(ctx, locked.ID, caller.ID(), s.now(), reason)
	})
	s.observe("reject", err)
	if err != nil {
		return RequestView{}, err
	}
	s.record(ctx, caller, "adjustment.reject", id, map[string]any{"reason": reason})
	return s.repo.Get(ctx, id)
}

// lockForDecision checks existence, then authorization, then state.
func (s *Service) lockForDecision(ctx context.Context, tx TxRepository, caller identity.Caller, id string) (Locked, error) {
	locked, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return Locked{}, err
	}
	if !canDecide(caller, locked.CompanyID, locked.AnalystID) {
		return Locked{}, ErrDecisionForbidden
	}
	if locked.Status != StatusPending {
		return Locked{}, ErrAlreadyProcessed
	}
	return locked, nil
}

// Get returns one request visible to caller.
func (s *Service) Get(ctx context.Context, caller identity.Caller, id string) (RequestView, error) {
	view, err := s.repo.Get(ctx, id)
	if err != nil {
		return RequestView{}, err
	}
	if !canView(caller, view.CompanyID, view.AnalystID) {
		return RequestView{}, ErrViewForbidden
	}
	return view, nil
}

// List returns the requests visible to caller.
func (s *Service) List(ctx context.Context, caller identity.Caller, filter ListFilter) (Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page{}, ErrInvalidStatus
	}
	return s.page(ctx, scopeFor(caller), filter)
}

// ListByCompany returns the requests of one company.
func (s *Service) ListByCompany(ctx context.Context, caller identity.Caller, companyID string, filter ListFilter) (Page, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return Page{}, ErrInvalidStatus
	}
	analystID, err := s.repo.CompanyAnalyst(ctx, companyID)
	if err != nil {
		return Page{}, err
	}
	if !canView(caller, companyID, analystID) {
		return Page{}, ErrViewForbidden
	}
	filter.CompanyID = companyID
	return s.page(ctx, Scope{}, filter)
}

func (s *Service) page(ctx context.Context, scope Scope, filter ListFilter) (Page, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	views, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return Page{}, err
	}
	if views == nil {
		views = []RequestView{}
	}
	return Page{Requests: views, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Summary aggregates the requests visible to caller.
func (s *Service) Summary(ctx context.Context, caller identity.Caller) (Summary, error) {
	scope := scopeFor(caller)
	var summary Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary.ByStatus, err = s.repo.CountByStatus(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		summary.ByType, err = s.repo.CountByType(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		summary.Recent, err = s.repo.Recent(gctx, scope, recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if summary.ByStatus == nil {
		summary.ByStatus = []StatusCount{}
	}
	if summary.ByType == nil {
		summary.ByType = []TypeCount{}
	}
	if summary.Recent == nil {
		summary.Recent = []RequestView{}
	}
	return summary, nil
}

func (s *Service) observe(decision string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, shared.ErrForbidden):
		outcome = "forbidden"
	case errors.Is(err, shared.ErrConflict):
		outcome = "already_processed"
	case errors.Is(err, shared.ErrInsufficientStock):
		outcome = "insufficient_stock"
	case errors.Is(err, shared.ErrValidation):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.AdjustmentDecision(decision, outcome)
}

func (s *Service) record(ctx context.Context, caller identity.Caller, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorType: string(caller.Kind()),
		ActorID:   caller.ID(),
		Action:    action,
		Entity:    "inventory_adjustment_request",
		EntityID:  id,
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("audit adjustment", slog.String("action", action), slog.String("request_id", id), slog.Any("error", err))
	}
}
