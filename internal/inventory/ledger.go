package inventory

import (
	"context"
	"fmt"
)

// ApplyMovement returns the quantity that results from applying a movement of
// qty to current. Additive types add, subtractive types subtract and
// adjustment replaces. It does not guard against negative results.
func ApplyMovement(current float64, t MovementType, qty float64) float64 {
	switch t {
	case MovementEntry, MovementTransferIn:
		return current + qty
	case MovementExit, MovementTransferOut:
		return current - qty
	case MovementAdjustment:
		return qty
	}
	return current
}

// Delta expresses a movement in storage form: a relative delta, or an
// absolute quantity when absolute is true.
func Delta(t MovementType, qty float64) (delta float64, absolute bool) {
	switch t {
	case MovementAdjustment:
		return qty, true
	case MovementExit, MovementTransferOut:
		return -qty, false
	case MovementEntry, MovementTransferIn:
		return qty, false
	}
	return 0, false
}

// Post records m against item inside tx and applies its quantity change.
// item must have been read under the row lock held by tx. The returned value
// is the quantity stored after the update.
func Post(ctx context.Context, tx TxRepository, item Item, m Movement) (float64, error) {
	if err := m.validate(); err != nil {
		return 0, err
	}
	if m.ItemID != item.ID {
		return 0, fmt.Errorf("inventory: movement for %s posted against %s", m.ItemID, item.ID)
	}
	if m.Type.Subtracts() && m.Quantity > item.CurrentQuantity {
		return 0, ErrInsufficientStock
	}
	if err := tx.InsertMovement(ctx, m); err != nil {
		return 0, err
	}
	delta, absolute := Delta(m.Type, m.Quantity)
	if absolute {
		return tx.SetQuantity(ctx, item.ID, ApplyMovement(item.CurrentQuantity, m.Type, m.Quantity))
	}
	return tx.ApplyDelta(ctx, item.ID, delta)
}
