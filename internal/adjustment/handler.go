package adjustment

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/httpx"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// Handler exposes adjustment requests over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes. Decisions accept PUT as well as POST for
// older clients.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/summary", h.summary)
	r.Get("/company/{companyID}", h.listByCompany)
	r.Get("/{id}", h.show)
	r.Post("/{id}/approve", h.approve)
	r.Put("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Put("/{id}/reject", h.reject)
}

type createRequest struct {
	ItemID             string              `json:"item_id" validate:"required,max=64"`
	MovementType       string              `json:"movement_type" validate:"required,oneof=entry exit transfer_out transfer_in adjustment"`
	Quantity           float64             `json:"quantity" validate:"gte=0"`
	UnitCost           decimal.NullDecimal `json:"unit_cost"`
	ToStockID          *string             `json:"to_stock_id" validate:"omitempty,max=64"`
	DestinationID      *string             `json:"destination_id" validate:"omitempty,max=64"`
	DestinationDetails *string             `json:"destination_details" validate:"omitempty,max=1000"`
	MovementDate       string              `json:"movement_date" validate:"required"`
	ReferenceNumber    *string             `json:"reference_number" validate:"omitempty,max=100"`
	Notes              *string             `json:"notes" validate:"omitempty,max=2000"`
	Reason             string              `json:"reason" validate:"required,max=1000"`
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movementDate, err := parseDate(req.MovementDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Create(r.Context(), caller, CreateInput{
		ItemID:             req.ItemID,
		MovementType:       inventory.MovementType(req.MovementType),
		Quantity:           req.Quantity,
		UnitCost:           req.UnitCost,
		ToStockID:          req.ToStockID,
		DestinationID:      req.DestinationID,
		DestinationDetails: req.DestinationDetails,
		MovementDate:       movementDate,
		ReferenceNumber:    req.ReferenceNumber,
		Notes:              req.Notes,
		Reason:             req.Reason,
		IdempotencyKey:     r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "create adjustment request", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	view, err := h.service.Approve(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "approve adjustment request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Reject(r.Context(), caller, chi.URLParam(r, "id"), req.RejectionReason)
	if err != nil {
		h.fail(w, "reject adjustment request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get adjustment request", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.CompanyID = r.URL.Query().Get("company_id")
	page, err := h.service.List(r.Context(), caller, filter)
	if err != nil {
		h.fail(w, "list adjustment requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) listByCompany(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListByCompany(r.Context(), caller, chi.URLParam(r, "companyID"), filter)
	if err != nil {
		h.fail(w, "list company adjustment requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), caller)
	if err != nil {
		h.fail(w, "summarise adjustment requests", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		return ListFilter{}, err
	}
	if filter.PerPage, err = intParam(q.Get("limit")); err != nil {
		return ListFilter{}, err
	}
	return filter, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: pagination parameters must be positive integers", shared.ErrValidation)
	}
	return v, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: movement_date must be an ISO 8601 date", shared.ErrValidation)
	}
	return t, nil
}

func callerFrom(w http.ResponseWriter, r *http.Request) (identity.Caller, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return identity.Caller{}, false
	}
	return caller, true
}
