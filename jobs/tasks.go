package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryLowStock alerts a company that an item reached its minimum.
	TaskInventoryLowStock = "inventory:low_stock"
	// TaskInventoryLowStockScan sweeps every item at or below its minimum.
	TaskInventoryLowStockScan = "inventory:low_stock_scan"
)

// LowStockPayload describes the item that triggered an alert.
type LowStockPayload struct {
	ItemID          string  `json:"item_id"`
	CompanyID       string  `json:"company_id"`
	AnalystID       string  `json:"analyst_id,omitempty"`
	ItemName        string  `json:"item_name"`
	Unit            string  `json:"unit"`
	CurrentQuantity float64 `json:"current_quantity"`
	MinimumQuantity float64 `json:"minimum_quantity"`
}

// LowStockPayloadFor captures the alert fields of item.
func LowStockPayloadFor(item inventory.Item) LowStockPayload {
	p := LowStockPayload{
		ItemID:          item.ID,
		CompanyID:       item.CompanyID,
		ItemName:        item.Name,
		Unit:            item.Unit,
		CurrentQuantity: item.CurrentQuantity,
		MinimumQuantity: item.MinimumQuantity,
	}
	if item.AnalystID != nil {
		p.AnalystID = *item.AnalystID
	}
	return p
}

// NewLowStockTask constructs an Asynq task for a low-stock alert.
func NewLowStockTask(payload LowStockPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStock, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	CompanyID    string    `json:"company_id,omitempty"`
}

// NewLowStockScanTask constructs the periodic scan task.
func NewLowStockScanTask(at time.Time, companyID string) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
