package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/platform/db"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

// RepositoryPort abstracts persistence used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListInbox(ctx context.Context, recipients []identity.Recipient, opts ListOptions) ([]InboxItem, error)
	GetInboxItem(ctx context.Context, deliveryID string) (InboxItem, error)
	GetDelivery(ctx context.Context, deliveryID string) (Delivery, error)
	MarkRead(ctx context.Context, deliveryID string, at time.Time) error
	MarkAllRead(ctx context.Context, recipients []identity.Recipient, at time.Time) (int64, error)
	Archive(ctx context.Context, deliveryID string) error
	CountUnread(ctx context.Context, recipients []identity.Recipient) (int, error)
}

// TxRepository exposes the fan-out writes that must commit together.
type TxRepository interface {
	InsertEvent(ctx context.Context, ev Event) error
	InsertDeliveries(ctx context.Context, deliveries []Delivery) error
}

// Repository persists notifications in PostgreSQL.
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

// WithTx runs fn inside a single database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (t *txRepository) InsertEvent(ctx context.Context, ev Event) error {
	query := `
		INSERT INTO notification_events (
			id, company_id, analyst_id, created_by_type, created_by_id,
			type, title, message, link_url, data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := t.tx.Exec(ctx, query,
		ev.ID, ev.CompanyID, ev.AnalystID, string(ev.CreatedByType), ev.CreatedByID,
		string(ev.Category), ev.Title, ev.Message, ev.LinkURL, ev.Data, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification event: %w", err)
	}
	return nil
}

func (t *txRepository) InsertDeliveries(ctx context.Context, deliveries []Delivery) error {
	query := `
		INSERT INTO notification_deliveries (id, event_id, recipient_type, recipient_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, d := range deliveries {
		_, err := t.tx.Exec(ctx, query, d.ID, d.EventID, string(d.Recipient.Type), d.Recipient.ID, d.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: duplicate delivery for %s/%s", shared.ErrConflict, d.Recipient.Type, d.Recipient.ID)
			}
			return fmt.Errorf("insert notification delivery: %w", err)
		}
	}
	return nil
}

const inboxColumns = `
	nd.id, nd.recipient_type, nd.recipient_id, nd.is_read, nd.read_at, nd.is_archived, nd.created_at,
	ne.id, ne.type, ne.title, ne.message, ne.link_url, ne.data, ne.created_at
`

// ListInbox returns deliveries addressed to any of recipients, newest first.
func (r *Repository) ListInbox(ctx context.Context, recipients []identity.Recipient, opts ListOptions) ([]InboxItem, error) {
	where, args := recipientPredicate("nd.", recipients, nil)
	conds := []string{where}
	if opts.UnreadOnly {
		conds = append(conds, "nd.is_read = FALSE", "nd.is_archived = FALSE")
	} else {
		conds = append(conds, "nd.is_archived = FALSE")
	}
	if opts.Before != nil {
		args = append(args, *opts.Before)
		conds = append(conds, fmt.Sprintf("nd.created_at < $%d", len(args)))
	}
	args = append(args, opts.Limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM notification_deliveries nd
		JOIN notification_events ne ON ne.id = nd.event_id
		WHERE %s
		ORDER BY nd.created_at DESC, nd.id DESC
		LIMIT $%d
	`, inboxColumns, strings.Join(conds, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]InboxItem, 0, opts.Limit)
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetInboxItem loads one delivery joined with its event.
func (r *Repository) GetInboxItem(ctx context.Context, deliveryID string) (InboxItem, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM notification_deliveries nd
		JOIN notification_events ne ON ne.id = nd.event_id
		WHERE nd.id = $1
	`, inboxColumns)
	item, err := scanInboxItem(r.pool.QueryRow(ctx, query, deliveryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InboxItem{}, ErrDeliveryNotFound
		}
		return InboxItem{}, err
	}
	return item, nil
}

// GetDelivery loads a delivery row.
func (r *Repository) GetDelivery(ctx context.Context, deliveryID string) (Delivery, error) {
	query := `
		SELECT id, event_id, recipient_type, recipient_id, is_read, read_at, is_archived, created_at
		FROM notification_deliveries
		WHERE id = $1
	`
	var d Delivery
	err := r.pool.QueryRow(ctx, query, deliveryID).Scan(
		&d.ID, &d.EventID, &d.Recipient.Type, &d.Recipient.ID,
		&d.IsRead, &d.ReadAt, &d.IsArchived, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Delivery{}, ErrDeliveryNotFound
		}
		return Delivery{}, err
	}
	return d, nil
}

// MarkRead flags the delivery as read, keeping the first read timestamp.
func (r *Repository) MarkRead(ctx context.Context, deliveryID string, at time.Time) error {
	cmdTag, err := r.pool.Exec(ctx, `
		UPDATE notification_deliveries
		SET is_read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1
	`, deliveryID, at)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// MarkAllRead flags every unread, unarchived delivery of recipients as read.
func (r *Repository) MarkAllRead(ctx context.Context, recipients []identity.Recipient, at time.Time) (int64, error) {
	where, args := recipientPredicate("", recipients, []any{at})
	query := fmt.Sprintf(`
		UPDATE notification_deliveries
		SET is_read = TRUE, read_at = $1
		WHERE %s AND is_archived = FALSE AND is_read = FALSE
	`, where)
	cmdTag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// Archive flags the delivery as archived.
func (r *Repository) Archive(ctx context.Context, deliveryID string) error {
	cmdTag, err := r.pool.Exec(ctx, `UPDATE notification_deliveries SET is_archived = TRUE WHERE id = $1`, deliveryID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// CountUnread counts unread, unarchived deliveries across recipients.
func (r *Repository) CountUnread(ctx context.Context, recipients []identity.Recipient) (int, error) {
	where, args := recipientPredicate("", recipients, nil)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM notification_deliveries
		WHERE %s AND is_archived = FALSE AND is_read = FALSE
	`, where)
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// recipientPredicate renders "(type = $n AND id = $n+1) OR ..." appending to args.
func recipientPredicate(prefix string, recipients []identity.Recipient, args []any) (string, []any) {
	parts := make([]string, 0, len(recipients))
	for _, rc := range recipients {
		args = append(args, string(rc.Type), rc.ID)
		parts = append(parts, fmt.Sprintf("(%srecipient_type = $%d AND %srecipient_id = $%d)", prefix, len(args)-1, prefix, len(args)))
	}
	if len(parts) == 0 {
		return "FALSE", args
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func scanInboxItem(row pgx.Row) (InboxItem, error) {
	var item InboxItem
	err := row.Scan(
		&item.DeliveryID, &item.RecipientType, &item.RecipientID, &item.IsRead, &item.ReadAt,
		&item.IsArchived, &item.DeliveredAt,
		&item.EventID, &item.Category, &item.Title, &item.Message, &item.LinkURL, &item.RawData,
		&item.EventCreatedAt,
	)
	return item, err
}
