package notification

import (
	"fmt"
	"time"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// Category classifies an event. Every category except system may be gated by
// the company's plan.
type Category string

const (
	CategoryGoal         Category = "goal"
	CategoryAlert        Category = "alert"
	CategoryInsight      Category = "insight"
	CategoryReport       Category = "report"
	CategoryInventory    Category = "inventory"
	CategoryArticle      Category = "article"
	CategorySubscription Category = "subscription"
	CategorySystem       Category = "system"
)

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	switch c {
	case CategoryGoal, CategoryAlert, CategoryInsight, CategoryReport,
		CategoryInventory, CategoryArticle, CategorySubscription, CategorySystem:
		return true
	}
	return false
}

// CreatorType identifies who raised an event.
type CreatorType string

const (
	CreatedBySystem  CreatorType = "system"
	CreatedByAnalyst CreatorType = "analyst"
	CreatedByAdmin   CreatorType = "admin"
)

// Valid reports whether the creator type is known.
func (c CreatorType) Valid() bool {
	return c == CreatedBySystem || c == CreatedByAnalyst || c == CreatedByAdmin
}

// Event is an immutable record that something notification-worthy happened.
type Event struct {
	ID            string
	CompanyID     *string
	AnalystID     *string
	CreatedByType CreatorType
	CreatedByID   *string
	Category      Category
	Title         string
	Message       string
	LinkURL       *string
	Data          []byte
	CreatedAt     time.Time
}

// Delivery is one event delivered to one recipient.
type Delivery struct {
	ID         string
	EventID    string
	Recipient  identity.Recipient
	IsRead     bool
	ReadAt     *time.Time
	IsArchived bool
	CreatedAt  time.Time
}

// InboxItem is a delivery joined with its event, as shown to a recipient.
type InboxItem struct {
	DeliveryID     string                 `json:"delivery_id"`
	RecipientType  identity.RecipientType `json:"recipient_type"`
	RecipientID    string                 `json:"recipient_id"`
	IsRead         bool                   `json:"is_read"`
	ReadAt         *time.Time             `json:"read_at"`
	IsArchived     bool                   `json:"is_archived"`
	DeliveredAt    time.Time              `json:"delivered_at"`
	EventID        string                 `json:"event_id"`
	Category       Category               `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	LinkURL        *string                `json:"link_url"`
	Data           any                    `json:"data"`
	EventCreatedAt time.Time              `json:"event_created_at"`

	RawData []byte `json:"-"`
}

// CreateEventInput describes an event and its intended recipients.
type CreateEventInput struct {
	CompanyID     string
	AnalystID     string
	CreatedByType CreatorType
	CreatedByID   string
	Category      Category
	Title         string
	Message       string
	LinkURL       string
	Data          any
	Recipients    []identity.Recipient
}

// ListOptions filters an inbox listing.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Before     *time.Time
}

// ListResult is one page of an inbox listing.
type ListResult struct {
	Items   []InboxItem `json:"data"`
	HasMore bool        `json:"has_more"`
}

// Notice is the realtime payload emitted for each persisted delivery.
type Notice struct {
	DeliveryID string
	EventID    string
	Recipient  identity.Recipient
	Category   Category
	Title      string
	CreatedAt  time.Time
}

var (
	// ErrDeliveryNotFound indicates the delivery does not exist.
	ErrDeliveryNotFound = fmt.Errorf("%w: notification delivery", shared.ErrNotFound)
	// ErrNotRecipient indicates the caller is not the delivery's recipient.
	ErrNotRecipient = fmt.Errorf("%w: delivery belongs to another recipient", shared.ErrForbidden)
	// ErrStaffOnly indicates only analysts and admins may raise events manually.
	ErrStaffOnly = fmt.Errorf("%w: only staff may create notification events", shared.ErrForbidden)

	ErrTitleRequired      = fmt.Errorf("%w: title is required", shared.ErrValidation)
	ErrInvalidCategory    = fmt.Errorf("%w: unknown notification type", shared.ErrValidation)
	ErrInvalidCreatorType = fmt.Errorf("%w: unknown creator type", shared.ErrValidation)
	ErrInvalidRecipient   = fmt.Errorf("%w: recipient type and id are required", shared.ErrValidation)
)
