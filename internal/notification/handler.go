package notification

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/httpx"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// Handler exposes the inbox over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates a new handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/read-all", h.markAllRead)
	r.Get("/{id}", h.show)
	r.Put("/{id}/read", h.markRead)
	r.Delete("/{id}", h.archive)
}

type recipientRequest struct {
	Type string `json:"recipient_type" validate:"required,oneof=company company_user analyst"`
	ID   string `json:"recipient_id" validate:"required,max=64"`
}

type createEventRequest struct {
	CompanyID  string             `json:"company_id" validate:"omitempty,max=64"`
	AnalystID  string             `json:"analyst_id" validate:"omitempty,max=64"`
	Type       string             `json:"type" validate:"required,oneof=goal alert insight report inventory article subscription system"`
	Title      string             `json:"title" validate:"required,max=255"`
	Message    string             `json:"message" validate:"max=4000"`
	LinkURL    string             `json:"link_url" validate:"omitempty,max=2048"`
	Data       json.RawMessage    `json:"data"`
	Recipients []recipientRequest `json:"recipients" validate:"required,min=1,dive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := ListOptions{UnreadOnly: q.Get("unread_only") == "1" || q.Get("unread_only") == "true"}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be a positive integer", shared.ErrValidation))
			return
		}
		opts.Limit = limit
	}
	if raw := q.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: before must be an RFC3339 timestamp", shared.ErrValidation))
			return
		}
		opts.Before = &before
	}

	res, err := h.service.List(r.Context(), caller, opts)
	if err != nil {
		h.fail(w, "list notifications", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get notification", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(r.Context(), caller)
	if err != nil {
		h.fail(w, "count unread notifications", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "mark notification read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	n, err := h.service.MarkAllRead(r.Context(), caller)
	if err != nil {
		h.fail(w, "mark all notifications read", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	if err := h.service.Archive(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		h.fail(w, "archive notification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req createEventRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateEventInput{
		CompanyID: req.CompanyID,
		AnalystID: req.AnalystID,
		Category:  Category(req.Type),
		Title:     req.Title,
		Message:   req.Message,
		LinkURL:   req.LinkURL,
	}
	if len(req.Data) > 0 {
		in.Data = req.Data
	}
	for _, rc := range req.Recipients {
		in.Recipients = append(in.Recipients, identity.Recipient{Type: identity.RecipientType(rc.Type), ID: rc.ID})
	}

	id, created, err := h.service.CreateForCaller(r.Context(), caller, in)
	if err != nil {
		h.fail(w, "create notification event", err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	var eventID *string
	if created {
		eventID = &id
	}
	httpx.JSON(w, status, map[string]any{"event_id": eventID, "created": created})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func callerFrom(w http.ResponseWriter, r *http.Request) (identity.Caller, bool) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return identity.Caller{}, false
	}
	return caller, true
}
