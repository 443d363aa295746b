package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRepository exposes the ledger writes that must share a transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, itemID string) (Item, error)
	ApplyDelta(ctx context.Context, itemID string, delta float64) (float64, error)
	SetQuantity(ctx context.Context, itemID string, quantity float64) (float64, error)
	InsertMovement(ctx context.Context, m Movement) error
}

// Repository reads inventory state from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds ledger writes to an open transaction owned by the caller.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const itemColumns = `ii.id, ii.stock_id, s.name, s.company_id, c.analyst_id, ii.item_name, ii.unit,
	ii.current_quantity, ii.minimum_quantity, ii.unit_cost, ii.updated_at`

const itemFrom = `FROM inventory_items ii
	JOIN inventory_stocks s ON s.id = ii.stock_id
	JOIN companies c ON c.id = s.company_id`

// GetItem loads an item with its owning company.
func (r *Repository) GetItem(ctx context.Context, itemID string) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` `+itemFrom+` WHERE ii.id = $1`, itemID)
	return scanItem(row)
}

// ListLowStock returns items at or below their minimum quantity. An empty
// companyID scans every company.
func (r *Repository) ListLowStock(ctx context.Context, companyID string, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` `+itemFrom+`
		WHERE ii.current_quantity <= ii.minimum_quantity
		  AND ($1 = '' OR s.company_id = $1)
		ORDER BY s.company_id, ii.item_name
		LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepository) GetItemForUpdate(ctx context.Context, itemID string) (Item, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+itemColumns+` `+itemFrom+` WHERE ii.id = $1 FOR UPDATE OF ii`, itemID)
	return scanItem(row)
}

func (t *txRepository) ApplyDelta(ctx context.Context, itemID string, delta float64) (float64, error) {
	var quantity float64
	err := t.tx.QueryRow(ctx, `UPDATE inventory_items
		SET current_quantity = current_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND current_quantity + $2 >= 0
		RETURNING current_quantity`, itemID, delta).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := t.GetItemForUpdate(ctx, itemID); lookupErr != nil {
			return 0, lookupErr
		}
		return 0, ErrInsufficientStock
	}
	return quantity, err
}

func (t *txRepository) SetQuantity(ctx context.Context, itemID string, quantity float64) (float64, error) {
	if quantity < 0 {
		return 0, ErrInsufficientStock
	}
	var stored float64
	err := t.tx.QueryRow(ctx, `UPDATE inventory_items
		SET current_quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING current_quantity`, itemID, quantity).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrItemNotFound
	}
	return stored, err
}

func (t *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	movementDate := m.MovementDate
	if movementDate.IsZero() {
		movementDate = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_movements (
			id, item_id, movement_type, quantity, unit_cost, total_cost,
			from_stock_id, to_stock_id, destination_id, destination_details,
			movement_date, reference_number, notes, created_by, is_client
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.ItemID, string(m.Type), m.Quantity, m.UnitCost, m.TotalCost,
		m.FromStockID, m.ToStockID, m.DestinationID, m.DestinationDetails,
		movementDate, m.ReferenceNumber, m.Notes, m.CreatedBy, m.IsClient)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.StockID, &item.StockName, &item.CompanyID, &item.AnalystID,
		&item.Name, &item.Unit, &item.CurrentQuantity, &item.MinimumQuantity, &item.UnitCost, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	return item, err
}
