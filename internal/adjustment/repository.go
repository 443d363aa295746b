package adjustment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/db"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// RepositoryPort describes persistence used by the workflow.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, itemID string) (inventory.Item, error)
	CompanyAnalyst(ctx context.Context, companyID string) (*string, error)
	Insert(ctx context.Context, r Request) error
	Get(ctx context.Context, id string) (RequestView, error)
	List(ctx context.Context, scope Scope, filter ListFilter) ([]RequestView, int, error)
	CountByStatus(ctx context.Context, scope Scope) ([]StatusCount, error)
	CountByType(ctx context.Context, scope Scope) ([]TypeCount, error)
	Recent(ctx context.Context, scope Scope, limit int) ([]RequestView, error)
}

// TxRepository exposes the writes of a decision. Inventory shares the same transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id string) (Locked, error)
	MarkApproved(ctx context.Context, id, approverID string, at time.Time, movementID string) error
	MarkRejected(ctx context.Context, id, approverID string, at time.Time, reason string) error
	Inventory() inventory.TxRepository
}

// Repository is the PostgreSQL implementation.
type Repository struct {
	pool  *pgxpool.Pool
	items *inventory.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, items: inventory.NewRepository(pool)}
}

type txRepository struct {
	tx        pgx.Tx
	inventory inventory.TxRepository
}

// WithTx runs fn inside a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, inventory: inventory.NewTxRepository(tx)})
	})
}

// GetItem loads the target item of a request.
func (r *Repository) GetItem(ctx context.Context, itemID string) (inventory.Item, error) {
	return r.items.GetItem(ctx, itemID)
}

// CompanyAnalyst returns the analyst assigned to a company, if any.
func (r *Repository) CompanyAnalyst(ctx context.Context, companyID string) (*string, error) {
	var analystID *string
	err := r.pool.QueryRow(ctx, `SELECT analyst_id FROM companies WHERE id = $1`, companyID).Scan(&analystID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	return analystID, err
}

// Insert stores a new pending request.
func (r *Repository) Insert(ctx context.Context, req Request) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory_adjustment_requests (
			id, item_id, company_id, requested_by, movement_type, quantity, unit_cost, total_cost,
			to_stock_id, destination_id, destination_details, movement_date, reference_number,
			notes, reason, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)`,
		req.ID, req.ItemID, req.CompanyID, req.RequestedBy, string(req.MovementType), req.Quantity,
		req.UnitCost, req.TotalCost, req.ToStockID, req.DestinationID, req.DestinationDetails,
		req.MovementDate, req.ReferenceNumber, req.Notes, req.Reason, string(req.Status), req.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrConflict
		}
		return fmt.Errorf("insert adjustment request: %w", err)
	}
	return nil
}

const requestColumns = `iar.id, iar.item_id, iar.company_id, iar.requested_by, iar.movement_type, iar.quantity,
	iar.unit_cost, iar.total_cost, iar.to_stock_id, iar.destination_id, iar.destination_details,
	iar.movement_date, iar.reference_number, iar.notes, iar.reason, iar.status, iar.approved_by,
	iar.approved_at, iar.rejection_reason, iar.movement_id, iar.created_at, iar.updated_at`

const viewColumns = requestColumns + `, ii.item_name, ii.unit, ii.current_quantity, s.name, c.company_name, c.analyst_id`

const viewFrom = `FROM inventory_adjustment_requests iar
	JOIN inventory_items ii ON ii.id = iar.item_id
	JOIN inventory_stocks s ON s.id = ii.stock_id
	JOIN companies c ON c.id = iar.company_id`

// Get loads one request view.
func (r *Repository) Get(ctx context.Context, id string) (RequestView, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+viewColumns+` `+viewFrom+` WHERE iar.id = $1`, id)
	return scanView(row)
}

// List returns a page of requests within scope, newest first, plus the total count.
func (r *Repository) List(ctx context.Context, scope Scope, filter ListFilter) ([]RequestView, int, error) {
	where, args := scopeClause(scope)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("iar.status = $%d", len(args)))
	}
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		where = append(where, fmt.Sprintf("iar.company_id = $%d", len(args)))
	}
	clause := whereSQL(where)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_adjustment_requests iar
		JOIN companies c ON c.id = iar.company_id `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	args = append(args, perPage, shared.Offset(page, perPage))
	query := fmt.Sprintf(`SELECT %s %s %s ORDER BY iar.created_at DESC, iar.id DESC LIMIT $%d OFFSET $%d`,
		viewColumns, viewFrom, clause, len(args)-1, len(args))
	views, err := r.queryViews(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// CountByStatus groups visible requests by status.
func (r *Repository) CountByStatus(ctx context.Context, scope Scope) ([]StatusCount, error) {
	where, args := scopeClause(scope)
	rows, err := r.pool.Query(ctx, `SELECT iar.status, COUNT(*) FROM inventory_adjustment_requests iar
		JOIN companies c ON c.id = iar.company_id `+whereSQL(where)+` GROUP BY iar.status ORDER BY iar.status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Total); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// CountByType groups visible requests by movement type.
func (r *Repository) CountByType(ctx context.Context, scope Scope) ([]TypeCount, error) {
	where, args := scopeClause(scope)
	rows, err := r.pool.Query(ctx, `SELECT iar.movement_type, COUNT(*) FROM inventory_adjustment_requests iar
		JOIN companies c ON c.id = iar.company_id `+whereSQL(where)+` GROUP BY iar.movement_type ORDER BY iar.movement_type`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.MovementType, &tc.Total); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Recent returns the latest visible requests.
func (r *Repository) Recent(ctx context.Context, scope Scope, limit int) ([]RequestView, error) {
	where, args := scopeClause(scope)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s %s %s ORDER BY iar.created_at DESC, iar.id DESC LIMIT $%d`,
		viewColumns, viewFrom, whereSQL(where), len(args))
	return r.queryViews(ctx, query, args...)
}

func (r *Repository) queryViews(ctx context.Context, query string, args ...any) ([]RequestView, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	views := make([]RequestView, 0)
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, rows.Err()
}

func (t *txRepository) Inventory() inventory.TxRepository {
	return t.inventory
}

func (t *txRepository) GetForUpdate(ctx context.Context, id string) (Locked, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+requestColumns+`, c.analyst_id
		FROM inventory_adjustment_requests iar
		JOIN companies c ON c.id = iar.company_id
		WHERE iar.id = $1
		FOR UPDATE OF iar`, id)
	var locked Locked
	dest := append(requestDest(&locked.Request), &locked.AnalystID)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Locked{}, ErrRequestNotFound
		}
		return Locked{}, err
	}
	return locked, nil
}

func (t *txRepository) MarkApproved(ctx context.Context, id, approverID string, at time.Time, movementID string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_adjustment_requests
		SET status = 'approved', approved_by = $2, approved_at = $3, movement_id = $4, updated_at = $3
		WHERE id = $1 AND status = 'pending'`, id, approverID, at, movementID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (t *txRepository) MarkRejected(ctx context.Context, id, approverID string, at time.Time, reason string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inventory_adjustment_requests
		SET status = 'rejected', approved_by = $2, approved_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $1 AND status = 'pending'`, id, approverID, at, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func scopeClause(scope Scope) ([]string, []any) {
	var where []string
	var args []any
	if scope.AnalystID != "" {
		args = append(args, scope.AnalystID)
		where = append(where, fmt.Sprintf("c.analyst_id = $%d", len(args)))
	}
	if scope.CompanyID != "" {
		args = append(args, scope.CompanyID)
		where = append(where, fmt.Sprintf("iar.company_id = $%d", len(args)))
	}
	return where, args
}

func whereSQL(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(where, " AND ")
}

func requestDest(r *Request) []any {
	return []any{&r.ID, &r.ItemID, &r.CompanyID, &r.RequestedBy, &r.MovementType, &r.Quantity,
		&r.UnitCost, &r.TotalCost, &r.ToStockID, &r.DestinationID, &r.DestinationDetails,
		&r.MovementDate, &r.ReferenceNumber, &r.Notes, &r.Reason, &r.Status, &r.ApprovedBy,
		&r.ApprovedAt, &r.RejectionReason, &r.MovementID, &r.CreatedAt, &r.UpdatedAt}
}

func scanView(row pgx.Row) (RequestView, error) {
	var v RequestView
	dest := append(requestDest(&v.Request), &v.ItemName, &v.Unit, &v.CurrentQuantity, &v.StockName, &v.CompanyName, &v.AnalystID)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RequestView{}, ErrRequestNotFound
		}
		return RequestView{}, err
	}
	return v, nil
}
