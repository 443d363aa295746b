package adjustment

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// Status is the request state. Only pending requests can move.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

const minReasonLength = 5

var (
	// ErrRequestNotFound indicates a missing adjustment request.
	ErrRequestNotFound = fmt.Errorf("%w: adjustment request", shared.ErrNotFound)
	// ErrAlreadyProcessed is returned when deciding a request that is no longer pending.
	ErrAlreadyProcessed = fmt.Errorf("%w: adjustment request has already been processed", shared.ErrConflict)
	// ErrCompanyUserOnly restricts request creation to company sub-users.
	ErrCompanyUserOnly = fmt.Errorf("%w: only company users can create adjustment requests", shared.ErrForbidden)
	// ErrItemAccess indicates the item belongs to another company.
	ErrItemAccess = fmt.Errorf("%w: access denied to this item", shared.ErrForbidden)
	// ErrDecisionForbidden indicates the caller may not approve or reject the request.
	ErrDecisionForbidden = fmt.Errorf("%w: only the company owner or assigned analyst can decide", shared.ErrForbidden)
	// ErrViewForbidden indicates the caller may not read the request.
	ErrViewForbidden = fmt.Errorf("%w: access denied to this adjustment request", shared.ErrForbidden)
	// ErrCompanyNotFound indicates a missing company.
	ErrCompanyNotFound = fmt.Errorf("%w: company", shared.ErrNotFound)
	// ErrRejectionReasonRequired rejects blank rejection reasons.
	ErrRejectionReasonRequired = fmt.Errorf("%w: rejection reason is required", shared.ErrValidation)
	// ErrReasonTooShort rejects requests without a meaningful reason.
	ErrReasonTooShort = fmt.Errorf("%w: reason must be at least %d characters", shared.ErrValidation, minReasonLength)
	// ErrInvalidStatus rejects unknown status filters.
	ErrInvalidStatus = fmt.Errorf("%w: invalid status", shared.ErrValidation)
)

// Request is a proposed inventory movement awaiting a decision.
type Request struct {
	ID                 string                 `json:"id"`
	ItemID             string                 `json:"item_id"`
	CompanyID          string                 `json:"company_id"`
	RequestedBy        string                 `json:"requested_by"`
	MovementType       inventory.MovementType `json:"movement_type"`
	Quantity           float64                `json:"quantity"`
	UnitCost           decimal.NullDecimal    `json:"unit_cost"`
	TotalCost          decimal.NullDecimal    `json:"total_cost"`
	ToStockID          *string                `json:"to_stock_id"`
	DestinationID      *string                `json:"destination_id"`
	DestinationDetails *string                `json:"destination_details"`
	MovementDate       time.Time              `json:"movement_date"`
	ReferenceNumber    *string                `json:"reference_number"`
	Notes              *string                `json:"notes"`
	Reason             string                 `json:"reason"`
	Status             Status                 `json:"status"`
	ApprovedBy         *string                `json:"approved_by"`
	ApprovedAt         *time.Time             `json:"approved_at"`
	RejectionReason    *string                `json:"rejection_reason"`
	MovementID         *string                `json:"movement_id"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// RequestView is a request joined with display fields of its item and company.
type RequestView struct {
	Request
	ItemName        string  `json:"item_name"`
	Unit            string  `json:"unit"`
	CurrentQuantity float64 `json:"current_quantity"`
	StockName       string  `json:"stock_name"`
	CompanyName     string  `json:"company_name"`
	AnalystID       *string `json:"analyst_id"`
}

// Locked is a request read under its row lock together with the analyst
// assigned to its company.
type Locked struct {
	Request
	AnalystID *string
}

// CreateInput describes a new request raised by a company user.
type CreateInput struct {
	ItemID             string
	MovementType       inventory.MovementType
	Quantity           float64
	UnitCost           decimal.NullDecimal
	ToStockID          *string
	DestinationID      *string
	DestinationDetails *string
	MovementDate       time.Time
	ReferenceNumber    *string
	Notes              *string
	Reason             string
	IdempotencyKey     string
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.ItemID) == "" {
		return fmt.Errorf("%w: item id is required", shared.ErrValidation)
	}
	if !in.MovementType.Valid() {
		return inventory.ErrInvalidMovementType
	}
	if in.Quantity < 0 || (in.Quantity == 0 && in.MovementType != inventory.MovementAdjustment) {
		return inventory.ErrInvalidQuantity
	}
	if in.UnitCost.Valid && in.UnitCost.Decimal.IsNegative() {
		return fmt.Errorf("%w: unit cost must not be negative", shared.ErrValidation)
	}
	if len([]rune(strings.TrimSpace(in.Reason))) < minReasonLength {
		return ErrReasonTooShort
	}
	return nil
}

// ListFilter narrows listings.
type ListFilter struct {
	Status    Status
	CompanyID string
	Page      int
	PerPage   int
}

// Scope restricts reads to what a caller may see. The zero value sees all.
type Scope struct {
	AnalystID string
	CompanyID string
}

// Page is one page of request views.
type Page struct {
	Requests   []RequestView     `json:"requests"`
	Pagination shared.Pagination `json:"pagination"`
}

// StatusCount is one row of the by-status summary.
type StatusCount struct {
	Status Status `json:"status"`
	Total  int    `json:"total"`
}

// TypeCount is one row of the by-type summary.
type TypeCount struct {
	MovementType inventory.MovementType `json:"movement_type"`
	Total        int                    `json:"total"`
}

// Summary aggregates the requests visible to a caller.
type Summary struct {
	ByStatus []StatusCount `json:"byStatus"`
	ByType   []TypeCount   `json:"byType"`
	Recent   []RequestView `json:"recent"`
}

// scopeFor derives the read scope of a caller.
func scopeFor(c identity.Caller) Scope {
	switch c.Kind() {
	case identity.KindAnalyst:
		return Scope{AnalystID: c.ID()}
	case identity.KindCompany, identity.KindCompanyUser:
		return Scope{CompanyID: c.CompanyID()}
	}
	return Scope{}
}

// canDecide reports whether c may approve or reject requests of companyID.
func canDecide(c identity.Caller, companyID string, analystID *string) bool {
	switch c.Kind() {
	case identity.KindAdmin:
		return true
	case identity.KindAnalyst:
		return analystID != nil && *analystID == c.ID()
	case identity.KindCompany:
		return c.ID() == companyID
	}
	return false
}

// canView extends canDecide with the company's own users.
func canView(c identity.Caller, companyID string, analystID *string) bool {
	if c.Kind() == identity.KindCompanyUser {
		return c.CompanyID() == companyID
	}
	return canDecide(c, companyID, analystID)
}

func approvalNote(notes *string, requestID string) *string {
	note := fmt.Sprintf("[Approved via request #%s]", requestID)
	if notes != nil && strings.TrimSpace(*notes) != "" {
		note = *notes + "\n" + note
	}
	return &note
}
