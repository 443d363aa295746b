package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/observability"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
	"github.com/guilhermemayrinkal/agribackend/internal/subscription"
)

const (
	defaultPageSize = 30
	defaultMaxPage  = 100
)

// PermissionResolver yields the plan capabilities of a company. It never fails.
type PermissionResolver interface {
	Resolve(ctx context.Context, companyID string) subscription.Capabilities
}

// Publisher receives a notice for every persisted delivery.
type Publisher interface {
	PublishDelivery(ctx context.Context, n Notice) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	PageSize    int
	MaxPageSize int
	Logger      *slog.Logger
	Metrics     *observability.Metrics
}

// Service implements event fan-out and the recipient inbox.
type Service struct {
	repo        RepositoryPort
	permissions PermissionResolver
	publisher   Publisher
	metrics     *observability.Metrics
	logger      *slog.Logger
	pageSize    int
	maxPageSize int
	unread      singleflight.Group
	now         func() time.Time
}

// NewService builds Service. permissions and publisher may be nil.
func NewService(repo RepositoryPort, permissions PermissionResolver, publisher Publisher, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	maxPage := cfg.MaxPageSize
	if maxPage < pageSize {
		maxPage = defaultMaxPage
		if maxPage < pageSize {
			maxPage = pageSize
		}
	}
	return &Service{
		repo:        repo,
		permissions: permissions,
		publisher:   publisher,
		metrics:     cfg.Metrics,
		logger:      logger,
		pageSize:    pageSize,
		maxPageSize: maxPage,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// CreateEvent persists one event and a delivery per eligible recipient.
// When plan gating leaves nobody to notify it writes nothing and returns
// created=false with a nil error.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (string, bool, error) {
	if err := normaliseInput(&in); err != nil {
		return "", false, err
	}

	recipients := dedupeRecipients(in.Recipients)
	if in.CompanyID != "" {
		if capability, gated := subscription.CapabilityFor(string(in.Category)); gated {
			caps := s.resolvePermissions(ctx, in.CompanyID)
			if !caps.Allows(capability) {
				before := len(recipients)
				recipients = withoutRecipient(recipients, identity.Recipient{Type: identity.RecipientCompany, ID: in.CompanyID})
				if len(recipients) != before {
					s.metrics.RecipientFiltered(string(in.Category))
					s.logger.Debug("company recipient filtered by plan",
						slog.String("company_id", in.CompanyID),
						slog.String("category", string(in.Category)))
				}
			}
		}
	}
	if len(recipients) == 0 {
		return "", false, nil
	}

	var data []byte
	if in.Data != nil {
		raw, err := json.Marshal(in.Data)
		if err != nil {
			return "", false, fmt.Errorf("%w: data is not valid JSON: %v", shared.ErrValidation, err)
		}
		if string(raw) != "null" {
			data = raw
		}
	}

	now := s.now()
	ev := Event{
		ID:            uuid.NewString(),
		CompanyID:     optional(in.CompanyID),
		AnalystID:     optional(in.AnalystID),
		CreatedByType: in.CreatedByType,
		CreatedByID:   optional(in.CreatedByID),
		Category:      in.Category,
		Title:         in.Title,
		Message:       in.Message,
		LinkURL:       optional(in.LinkURL),
		Data:          data,
		CreatedAt:     now,
	}
	deliveries := make([]Delivery, 0, len(recipients))
	for _, rc := range recipients {
		deliveries = append(deliveries, Delivery{
			ID:        uuid.NewString(),
			EventID:   ev.ID,
			Recipient: rc,
			CreatedAt: now,
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		return tx.InsertDeliveries(ctx, deliveries)
	})
	if err != nil {
		return "", false, err
	}

	types := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		types = append(types, string(d.Recipient.Type))
	}
	s.metrics.EventCreated(string(ev.Category), types)
	s.publish(ctx, ev, deliveries)
	return ev.ID, true, nil
}

// CreateForCaller lets staff raise an event manually; the creator is the caller.
func (s *Service) CreateForCaller(ctx context.Context, caller identity.Caller, in CreateEventInput) (string, bool, error) {
	switch caller.Kind() {
	case identity.KindAdmin:
		in.CreatedByType = CreatedByAdmin
	case identity.KindAnalyst:
		in.CreatedByType = CreatedByAnalyst
	default:
		return "", false, ErrStaffOnly
	}
	in.CreatedByID = caller.ID()
	return s.CreateEvent(ctx, in)
}

// List returns the caller's inbox, newest first.
func (s *Service) List(ctx context.Context, caller identity.Caller, opts ListOptions) (ListResult, error) {
	recipients := caller.Recipients()
	if len(recipients) == 0 {
		return ListResult{Items: []InboxItem{}}, nil
	}
	opts.Limit = s.clampLimit(opts.Limit)

	items, err := s.repo.ListInbox(ctx, recipients, opts)
	if err != nil {
		return ListResult{}, err
	}
	for i := range items {
		items[i].Data = decodeData(items[i].RawData)
	}
	if items == nil {
		items = []InboxItem{}
	}
	return ListResult{Items: items, HasMore: len(items) == opts.Limit}, nil
}

// Get returns a single delivery addressed to the caller.
func (s *Service) Get(ctx context.Context, caller identity.Caller, deliveryID string) (InboxItem, error) {
	item, err := s.repo.GetInboxItem(ctx, deliveryID)
	if err != nil {
		return InboxItem{}, err
	}
	if !caller.CanActAs(identity.Recipient{Type: item.RecipientType, ID: item.RecipientID}) {
		return InboxItem{}, ErrNotRecipient
	}
	item.Data = decodeData(item.RawData)
	return item, nil
}

// MarkRead flags a delivery as read. Repeated calls keep the first read time.
func (s *Service) MarkRead(ctx context.Context, caller identity.Caller, deliveryID string) error {
	if err := s.authorizeDelivery(ctx, caller, deliveryID); err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, deliveryID, s.now())
}

// MarkAllRead flags every unread delivery of the caller as read.
func (s *Service) MarkAllRead(ctx context.Context, caller identity.Caller) (int64, error) {
	recipients := caller.Recipients()
	if len(recipients) == 0 {
		return 0, nil
	}
	return s.repo.MarkAllRead(ctx, recipients, s.now())
}

// Archive hides a delivery permanently. There is no unarchive.
func (s *Service) Archive(ctx context.Context, caller identity.Caller, deliveryID string) error {
	if err := s.authorizeDelivery(ctx, caller, deliveryID); err != nil {
		return err
	}
	return s.repo.Archive(ctx, deliveryID)
}

// UnreadCount counts unread, unarchived deliveries across the caller's identities.
// Concurrent polls for the same caller share one query.
func (s *Service) UnreadCount(ctx context.Context, caller identity.Caller) (int, error) {
	recipients := caller.Recipients()
	if len(recipients) == 0 {
		return 0, nil
	}
	// The shared query outlives any single caller; each caller waits on its own ctx.
	detached := context.WithoutCancel(ctx)
	ch := s.unread.DoChan(caller.Key(), func() (any, error) {
		return s.repo.CountUnread(detached, recipients)
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

func (s *Service) authorizeDelivery(ctx context.Context, caller identity.Caller, deliveryID string) error {
	d, err := s.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if !caller.CanActAs(d.Recipient) {
		return ErrNotRecipient
	}
	return nil
}

func (s *Service) resolvePermissions(ctx context.Context, companyID string) subscription.Capabilities {
	if s.permissions == nil {
		return subscription.DefaultCapabilities()
	}
	return s.permissions.Resolve(ctx, companyID)
}

func (s *Service) publish(ctx context.Context, ev Event, deliveries []Delivery) {
	if s.publisher == nil {
		return
	}
	for _, d := range deliveries {
		err := s.publisher.PublishDelivery(ctx, Notice{
			DeliveryID: d.ID,
			EventID:    ev.ID,
			Recipient:  d.Recipient,
			Category:   ev.Category,
			Title:      ev.Title,
			CreatedAt:  d.CreatedAt,
		})
		if err != nil {
			s.metrics.PublishFailed()
			s.logger.Warn("publish notification", slog.String("delivery_id", d.ID), slog.Any("error", err))
		}
	}
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.pageSize
	}
	if limit > s.maxPageSize {
		return s.maxPageSize
	}
	return limit
}

func normaliseInput(in *CreateEventInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrTitleRequired
	}
	if !in.Category.Valid() {
		return ErrInvalidCategory
	}
	if in.CreatedByType == "" {
		in.CreatedByType = CreatedBySystem
	}
	if !in.CreatedByType.Valid() {
		return ErrInvalidCreatorType
	}
	for _, rc := range in.Recipients {
		if !rc.Type.Valid() || strings.TrimSpace(rc.ID) == "" {
			return ErrInvalidRecipient
		}
	}
	return nil
}

func dedupeRecipients(in []identity.Recipient) []identity.Recipient {
	seen := make(map[identity.Recipient]struct{}, len(in))
	out := make([]identity.Recipient, 0, len(in))
	for _, rc := range in {
		if _, ok := seen[rc]; ok {
			continue
		}
		seen[rc] = struct{}{}
		out = append(out, rc)
	}
	return out
}

func withoutRecipient(in []identity.Recipient, drop identity.Recipient) []identity.Recipient {
	out := in[:0]
	for _, rc := range in {
		if rc != drop {
			out = append(out, rc)
		}
	}
	return out
}

// decodeData parses a stored payload; malformed payloads degrade to nil.
func decodeData(raw []byte) any {
	return shared.ParseOrDefault[any](raw, nil)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
