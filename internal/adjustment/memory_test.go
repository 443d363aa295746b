package adjustment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
	"github.com/guilhermemayrinkal/agribackend/internal/shared"
)

type memoryCompany struct {
	name      string
	analystID *string
}

type memoryState struct {
	companies map[string]memoryCompany
	items     map[string]inventory.Item
	requests  map[string]Request
	movements []inventory.Movement
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		companies: make(map[string]memoryCompany, len(s.companies)),
		items:     make(map[string]inventory.Item, len(s.items)),
		requests:  make(map[string]Request, len(s.requests)),
		movements: append([]inventory.Movement(nil), s.movements...),
	}
	for k, v := range s.companies {
		out.companies[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.requests {
		out.requests[k] = v
	}
	return out
}

// memoryRepo serialises transactions with a mutex and commits a cloned state
// only when the callback succeeds.
type memoryRepo struct {
	mu           sync.Mutex
	state        memoryState
	failApproval error
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		companies: make(map[string]memoryCompany),
		items:     make(map[string]inventory.Item),
		requests:  make(map[string]Request),
	}}
}

func (r *memoryRepo) addCompany(id, name string, analystID *string) {
	r.state.companies[id] = memoryCompany{name: name, analystID: analystID}
}

func (r *memoryRepo) addItem(item inventory.Item) {
	item.AnalystID = r.state.companies[item.CompanyID].analystID
	r.state.items[item.ID] = item
}

func (r *memoryRepo) setQuantity(itemID string, qty float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := r.state.items[itemID]
	item.CurrentQuantity = qty
	r.state.items[itemID] = item
}

func (r *memoryRepo) item(id string) inventory.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.items[id]
}

func (r *memoryRepo) request(id string) Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.requests[id]
}

func (r *memoryRepo) movements() []inventory.Movement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]inventory.Movement(nil), r.state.movements...)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r, state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetItem(ctx context.Context, itemID string) (inventory.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.state.items[itemID]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) CompanyAnalyst(ctx context.Context, companyID string) (*string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.state.companies[companyID]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	return c.analystID, nil
}

func (r *memoryRepo) Insert(ctx context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.state.requests[req.ID]; exists {
		return shared.ErrConflict
	}
	r.state.requests[req.ID] = req
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id string) (RequestView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.state.requests[id]
	if !ok {
		return RequestView{}, ErrRequestNotFound
	}
	return r.view(req), nil
}

func (r *memoryRepo) view(req Request) RequestView {
	item := r.state.items[req.ItemID]
	company := r.state.companies[req.CompanyID]
	return RequestView{
		Request:         req,
		ItemName:        item.Name,
		Unit:            item.Unit,
		CurrentQuantity: item.CurrentQuantity,
		StockName:       item.StockName,
		CompanyName:     company.name,
		AnalystID:       company.analystID,
	}
}

func (r *memoryRepo) visible(scope Scope) []Request {
	var out []Request
	for _, req := range r.state.requests {
		company := r.state.companies[req.CompanyID]
		if scope.AnalystID != "" && (company.analystID == nil || *company.analystID != scope.AnalystID) {
			continue
		}
		if scope.CompanyID != "" && req.CompanyID != scope.CompanyID {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *memoryRepo) List(ctx context.Context, scope Scope, filter ListFilter) ([]RequestView, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Request
	for _, req := range r.visible(scope) {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.CompanyID != "" && req.CompanyID != filter.CompanyID {
			continue
		}
		matched = append(matched, req)
	}
	page, perPage := shared.NormalizePage(filter.Page, filter.PerPage)
	start := shared.Offset(page, perPage)
	var views []RequestView
	for i := start; i < len(matched) && i < start+perPage; i++ {
		views = append(views, r.view(matched[i]))
	}
	return views, len(matched), nil
}

func (r *memoryRepo) CountByStatus(ctx context.Context, scope Scope) ([]StatusCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[Status]int{}
	for _, req := range r.visible(scope) {
		counts[req.Status]++
	}
	var out []StatusCount
	for _, st := range []Status{StatusApproved, StatusPending, StatusRejected} {
		if counts[st] > 0 {
			out = append(out, StatusCount{Status: st, Total: counts[st]})
		}
	}
	return out, nil
}

func (r *memoryRepo) CountByType(ctx context.Context, scope Scope) ([]TypeCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[inventory.MovementType]int{}
	for _, req := range r.visible(scope) {
		counts[req.MovementType]++
	}
	var out []TypeCount
	for t, n := range counts {
		out = append(out, TypeCount{MovementType: t, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MovementType < out[j].MovementType })
	return out, nil
}

func (r *memoryRepo) Recent(ctx context.Context, scope Scope, limit int) ([]RequestView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var views []RequestView
	for i, req := range r.visible(scope) {
		if i == limit {
			break
		}
		views = append(views, r.view(req))
	}
	return views, nil
}

func (tx *memoryTx) Inventory() inventory.TxRepository { return tx }

func (tx *memoryTx) GetForUpdate(ctx context.Context, id string) (Locked, error) {
	req, ok := tx.state.requests[id]
	if !ok {
		return Locked{}, ErrRequestNotFound
	}
	return Locked{Request: req, AnalystID: tx.state.companies[req.CompanyID].analystID}, nil
}

func (tx *memoryTx) MarkApproved(ctx context.Context, id, approverID string, at time.Time, movementID string) error {
	if tx.repo.failApproval != nil {
		return tx.repo.failApproval
	}
	req := tx.state.requests[id]
	if req.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	req.Status = StatusApproved
	req.ApprovedBy = &approverID
	req.ApprovedAt = &at
	req.MovementID = &movementID
	req.UpdatedAt = at
	tx.state.requests[id] = req
	return nil
}

func (tx *memoryTx) MarkRejected(ctx context.Context, id, approverID string, at time.Time, reason string) error {
	req := tx.state.requests[id]
	if req.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	req.Status = StatusRejected
	req.ApprovedBy = &approverID
	req.ApprovedAt = &at
	req.RejectionReason = &reason
	req.UpdatedAt = at
	tx.state.requests[id] = req
	return nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID string) (inventory.Item, error) {
	item, ok := tx.state.items[itemID]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, itemID string, delta float64) (float64, error) {
	item, ok := tx.state.items[itemID]
	if !ok {
		return 0, inventory.ErrItemNotFound
	}
	if item.CurrentQuantity+delta < 0 {
		return 0, inventory.ErrInsufficientStock
	}
	item.CurrentQuantity += delta
	tx.state.items[itemID] = item
	return item.CurrentQuantity, nil
}

func (tx *memoryTx) SetQuantity(ctx context.Context, itemID string, quantity float64) (float64, error) {
	item, ok := tx.state.items[itemID]
	if !ok {
		return 0, inventory.ErrItemNotFound
	}
	item.CurrentQuantity = quantity
	tx.state.items[itemID] = item
	return quantity, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m inventory.Movement) error {
	tx.state.movements = append(tx.state.movements, m)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []inventory.Item
	err   error
}

func (n *recordingNotifier) NotifyLowStock(ctx context.Context, item inventory.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
	return n.err
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"/"+key)
	return nil
}

var errInjected = errors.New("injected failure")
