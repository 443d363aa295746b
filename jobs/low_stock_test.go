package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	jobmetrics "github.com/guilhermemayrinkal/agribackend/internal/jobs"
	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/notification"
)

type stubEvents struct {
	inputs  []notification.CreateEventInput
	created bool
	err     error
}

func (s *stubEvents) CreateEvent(_ context.Context, in notification.CreateEventInput) (string, bool, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return "", false, s.err
	}
	if !s.created {
		return "", false, nil
	}
	return "event-1", true, nil
}

type stubLister struct {
	items     []inventory.Item
	companyID string
	err       error
}

func (s *stubLister) ListLowStock(_ context.Context, companyID string, _ int) ([]inventory.Item, error) {
	s.companyID = companyID
	return s.items, s.err
}

type stubNotifier struct {
	notified []string
	failFor  string
}

func (s *stubNotifier) NotifyLowStock(_ context.Context, item inventory.Item) error {
	if item.ID == s.failFor {
		return errors.New("redis down")
	}
	s.notified = append(s.notified, item.ID)
	return nil
}

func lowStockTask(t *testing.T, payload LowStockPayload) *asynq.Task {
	t.Helper()
	task, err := NewLowStockTask(payload)
	require.NoError(t, err)
	return task
}

func TestLowStockAlertJobCreatesInventoryEvent(t *testing.T) {
	events := &stubEvents{created: true}
	job := NewLowStockAlertJob(events, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), language.English)

	err := job.Handle(context.Background(), lowStockTask(t, LowStockPayload{
		ItemID:          "item-1",
		CompanyID:       "company-1",
		AnalystID:       "analyst-1",
		ItemName:        "Fertilizer",
		Unit:            "kg",
		CurrentQuantity: 4,
		MinimumQuantity: 10,
	}))
	require.NoError(t, err)
	require.Len(t, events.inputs, 1)

	in := events.inputs[0]
	require.Equal(t, notification.CategoryInventory, in.Category)
	require.Equal(t, notification.CreatedBySystem, in.CreatedByType)
	require.Equal(t, "Low stock: Fertilizer", in.Title)
	require.Contains(t, in.Message, "Fertilizer")
	require.Equal(t, "/inventory/items/item-1", in.LinkURL)
	require.Equal(t, []identity.Recipient{
		{Type: identity.RecipientCompany, ID: "company-1"},
		{Type: identity.RecipientAnalyst, ID: "analyst-1"},
	}, in.Recipients)
}

func TestLowStockAlertJobWithoutAnalyst(t *testing.T) {
	events := &stubEvents{}
	job := NewLowStockAlertJob(events, nil, nil, language.English)

	err := job.Handle(context.Background(), lowStockTask(t, LowStockPayload{ItemID: "item-1", CompanyID: "company-1", ItemName: "Seed"}))
	require.NoError(t, err)
	require.Len(t, events.inputs, 1)
	require.Equal(t, []identity.Recipient{{Type: identity.RecipientCompany, ID: "company-1"}}, events.inputs[0].Recipients)
}

func TestLowStockAlertJobRejectsBadPayload(t *testing.T) {
	job := NewLowStockAlertJob(&stubEvents{}, nil, nil, language.English)

	err := job.Handle(context.Background(), asynq.NewTask(TaskInventoryLowStock, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskInventoryLowStock, []byte(`{"item_id":"item-1"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLowStockAlertJobPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewLowStockAlertJob(&stubEvents{err: boom}, nil, nil, language.English)

	err := job.Handle(context.Background(), lowStockTask(t, LowStockPayload{ItemID: "item-1", CompanyID: "company-1"}))
	require.ErrorIs(t, err, boom)
}

func TestLowStockScanJobEnqueuesEachItem(t *testing.T) {
	lister := &stubLister{items: []inventory.Item{{ID: "item-1"}, {ID: "item-2"}, {ID: "item-3"}}}
	notifier := &stubNotifier{failFor: "item-2"}
	job := NewLowStockScanJob(lister, notifier, nil, nil)

	task, err := NewLowStockScanTask(fixedTime(), "company-1")
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Equal(t, "company-1", lister.companyID)
	require.Equal(t, []string{"item-1", "item-3"}, notifier.notified)
}

func TestLowStockScanJobEmptyPayloadScansAll(t *testing.T) {
	lister := &stubLister{}
	job := NewLowStockScanJob(lister, &stubNotifier{}, nil, nil)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskInventoryLowStockScan, nil)))
	require.Empty(t, lister.companyID)
}

func TestLowStockTaskIDIsPerItem(t *testing.T) {
	require.Equal(t, "inventory:low_stock:item-1", lowStockTaskID("item-1"))
	require.Equal(t, LowStockPayload{ItemID: "i", CompanyID: "c", AnalystID: "a", ItemName: "Seed", Unit: "kg", CurrentQuantity: 1, MinimumQuantity: 2},
		LowStockPayloadFor(inventory.Item{ID: "i", CompanyID: "c", AnalystID: ptr("a"), Name: "Seed", Unit: "kg", CurrentQuantity: 1, MinimumQuantity: 2}))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, status: http.StatusOK, pending: 3},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}

func fixedTime() time.Time {
	return time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
}

func ptr(s string) *string { return &s }

func TestLowStockAlertJobLocalisedText(t *testing.T) {
	events := &stubEvents{created: true}
	job := NewLowStockAlertJob(events, nil, nil, language.BrazilianPortuguese)

	err := job.Handle(context.Background(), lowStockTask(t, LowStockPayload{ItemID: "item-1", CompanyID: "company-1", ItemName: "Ureia", Unit: "kg"}))
	require.NoError(t, err)
	require.Equal(t, "Estoque baixo: Ureia", events.inputs[0].Title)
	require.Contains(t, events.inputs[0].Message, "Ureia está com")
}
