package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/guilhermemayrinkal/agribackend/internal/jobs"
	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/notification"
)

const (
	lowStockTitle   = "Low stock: %s"
	lowStockMessage = "%s is at %.2f %s, at or below the minimum of %.2f %s."
)

func init() {
	_ = message.SetString(language.BrazilianPortuguese, lowStockTitle, "Estoque baixo: %s")
	_ = message.SetString(language.BrazilianPortuguese, lowStockMessage, "%s está com %.2f %s, no mínimo de %.2f %s ou abaixo dele.")
}

// EventCreator fans an event out to its recipients.
type EventCreator interface {
	CreateEvent(ctx context.Context, in notification.CreateEventInput) (string, bool, error)
}

// LowStockAlertJob turns low-stock tasks into inventory notifications for the
// company and its assigned analyst.
type LowStockAlertJob struct {
	Events  EventCreator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	printer *message.Printer
}

// NewLowStockAlertJob initialises the alert handler. Quantities in the message
// are formatted for locale.
func NewLowStockAlertJob(events EventCreator, logger *slog.Logger, metrics *jobmetrics.Metrics, locale language.Tag) *LowStockAlertJob {
	return &LowStockAlertJob{
		Events:  events,
		Logger:  logger,
		Metrics: metrics,
		printer: message.NewPrinter(locale),
	}
}

// Handle executes a low-stock alert.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Events == nil {
		return errors.New("low stock alert: handler not configured")
	}
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock alert: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ItemID == "" || payload.CompanyID == "" {
		return fmt.Errorf("low stock alert: item and company required: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskInventoryLowStock)
	defer func() {
		err = tracker.End(err)
	}()

	in := j.event(payload)
	eventID, created, err := j.Events.CreateEvent(ctx, in)
	if err != nil {
		j.logger().Error("create low stock notification", slog.String("item_id", payload.ItemID), slog.Any("error", err))
		return err
	}
	if !created {
		j.Metrics.AddAlerts("filtered", 1)
		j.logger().Info("low stock alert had no eligible recipients", slog.String("item_id", payload.ItemID))
		return nil
	}
	j.Metrics.AddAlerts("created", 1)
	j.logger().Info("low stock alert created",
		slog.String("item_id", payload.ItemID),
		slog.String("company_id", payload.CompanyID),
		slog.String("event_id", eventID),
	)
	return nil
}

func (j *LowStockAlertJob) event(p LowStockPayload) notification.CreateEventInput {
	recipients := []identity.Recipient{{Type: identity.RecipientCompany, ID: p.CompanyID}}
	if p.AnalystID != "" {
		recipients = append(recipients, identity.Recipient{Type: identity.RecipientAnalyst, ID: p.AnalystID})
	}
	printer := j.printer
	if printer == nil {
		printer = message.NewPrinter(language.English)
	}
	return notification.CreateEventInput{
		CompanyID:     p.CompanyID,
		AnalystID:     p.AnalystID,
		CreatedByType: notification.CreatedBySystem,
		Category:      notification.CategoryInventory,
		Title:         printer.Sprintf(lowStockTitle, p.ItemName),
		Message:       printer.Sprintf(lowStockMessage, p.ItemName, p.CurrentQuantity, p.Unit, p.MinimumQuantity, p.Unit),
		LinkURL:       "/inventory/items/" + p.ItemID,
		Data:          p,
		Recipients:    recipients,
	}
}

func (j *LowStockAlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// LowStockLister lists items at or below their minimum.
type LowStockLister interface {
	ListLowStock(ctx context.Context, companyID string, limit int) ([]inventory.Item, error)
}

// LowStockNotifier schedules an alert for one item.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, item inventory.Item) error
}

// LowStockScanJob enqueues alerts for every item sitting at or below its minimum.
type LowStockScanJob struct {
	Items    LowStockLister
	Notifier LowStockNotifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Limit    int
	clock    func() time.Time
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(items LowStockLister, notifier LowStockNotifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{
		Items:    items,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		Limit:    1000,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Items == nil || j.Notifier == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("low stock scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	start := j.clock()
	tracker := j.Metrics.Track(TaskInventoryLowStockScan)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("company_id", payload.CompanyID))
	items, err := j.Items.ListLowStock(ctx, payload.CompanyID, j.Limit)
	if err != nil {
		logger.Error("list low stock items", slog.Any("error", err))
		return err
	}

	var enqueued int
	var failed error
	for _, item := range items {
		if err := j.Notifier.NotifyLowStock(ctx, item); err != nil {
			logger.Warn("enqueue low stock alert", slog.String("item_id", item.ID), slog.Any("error", err))
			failed = errors.Join(failed, err)
			continue
		}
		enqueued++
	}
	j.Metrics.AddAlerts("enqueued", enqueued)
	logger.Info("completed low stock scan",
		slog.Int("items", len(items)),
		slog.Int("enqueued", enqueued),
		slog.Duration("duration", j.clock().Sub(start)),
	)
	return failed
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
