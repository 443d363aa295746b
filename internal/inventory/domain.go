package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// MovementType enumerates supported inventory movements.
type MovementType string

const (
	// MovementEntry adds stock received from outside.
	MovementEntry MovementType = "entry"
	// MovementExit removes stock that leaves the company.
	MovementExit MovementType = "exit"
	// MovementTransferOut removes stock sent to another location.
	MovementTransferOut MovementType = "transfer_out"
	// MovementTransferIn adds stock received from another location.
	MovementTransferIn MovementType = "transfer_in"
	// MovementAdjustment replaces the on-hand quantity with an absolute count.
	MovementAdjustment MovementType = "adjustment"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementEntry, MovementExit, MovementTransferOut, MovementTransferIn, MovementAdjustment:
		return true
	}
	return false
}

// Subtracts reports whether t draws down the on-hand quantity.
func (t MovementType) Subtracts() bool {
	return t == MovementExit || t == MovementTransferOut
}

var (
	// ErrItemNotFound indicates a missing inventory item.
	ErrItemNotFound = fmt.Errorf("%w: inventory item", shared.ErrNotFound)
	// ErrInsufficientStock indicates a movement would drive quantity negative.
	ErrInsufficientStock = fmt.Errorf("%w: movement would drive quantity below zero", shared.ErrInsufficientStock)
	// ErrInvalidMovementType rejects unknown movement types.
	ErrInvalidMovementType = fmt.Errorf("%w: invalid movement type", shared.ErrValidation)
	// ErrInvalidQuantity rejects negative quantities and zero outside adjustments.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive, or zero for an adjustment", shared.ErrValidation)
)

// Item is the on-hand state of a tracked good within a stock location.
type Item struct {
	ID              string
	StockID         string
	StockName       string
	CompanyID       string
	AnalystID       *string
	Name            string
	Unit            string
	CurrentQuantity float64
	MinimumQuantity float64
	UnitCost        decimal.NullDecimal
	UpdatedAt       time.Time
}

// LowStock reports whether the item sits at or below its minimum.
func (i Item) LowStock() bool {
	return i.CurrentQuantity <= i.MinimumQuantity
}

// Movement is a committed change to an item's quantity.
type Movement struct {
	ID                 string
	ItemID             string
	Type               MovementType
	Quantity           float64
	UnitCost           decimal.NullDecimal
	TotalCost          decimal.NullDecimal
	FromStockID        *string
	ToStockID          *string
	DestinationID      *string
	DestinationDetails *string
	MovementDate       time.Time
	ReferenceNumber    *string
	Notes              *string
	CreatedBy          string
	IsClient           bool
}

func (m Movement) validate() error {
	if m.ItemID == "" {
		return errors.New("inventory: movement item required")
	}
	if !m.Type.Valid() {
		return ErrInvalidMovementType
	}
	if m.Quantity < 0 || (m.Quantity == 0 && m.Type != MovementAdjustment) {
		return ErrInvalidQuantity
	}
	return nil
}
