package adjustment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/inventory"
)

const basePath = "/api/inventory/adjustment-requests"

func newHandlerFixture() (http.Handler, *memoryRepo) {
	repo := newMemoryRepo()
	repo.addCompany(companyA, "Fazenda A", &analystA)
	repo.addCompany(companyB, "Fazenda B", &analystB)
	repo.addItem(inventory.Item{ID: itemA, StockID: "stock-a", CompanyID: companyA, Name: "Ureia", Unit: "kg", CurrentQuantity: 100})
	r := chi.NewRouter()
	r.Route(basePath, NewHandler(nil, NewService(repo, ServiceConfig{})).MountRoutes)
	return r, repo
}

func serve(t *testing.T, h http.Handler, caller *identity.Caller, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		req = req.WithContext(identity.WithCaller(req.Context(), *caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createViaHTTP(t *testing.T, h http.Handler, movementType string, qty string) string {
	t.Helper()
	body := `{"item_id":"` + itemA + `","movement_type":"` + movementType + `","quantity":` + qty +
		`,"unit_cost":"1.5","movement_date":"2025-03-01","reason":"stock count"}`
	rr := serve(t, h, &requester, http.MethodPost, basePath+"/", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var view struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		TotalCost string `json:"total_cost"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "pending", view.Status)
	return view.ID
}

func TestHandlerCreateAndApprove(t *testing.T) {
	h, repo := newHandlerFixture()
	id := createViaHTTP(t, h, "entry", "20")

	approver := identity.Analyst(analystA)
	rr := serve(t, h, &approver, http.MethodPost, basePath+"/"+id+"/approve", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.InDelta(t, 120.0, repo.item(itemA).CurrentQuantity, 1e-9)

	rr = serve(t, h, &approver, http.MethodPut, basePath+"/"+id+"/approve", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"detail":"conflict: adjustment request has already been processed"`)

	rr = serve(t, h, &approver, http.MethodPost, basePath+"/"+id+"/reject", `{"rejection_reason":"late"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerErrorMapping(t *testing.T) {
	h, _ := newHandlerFixture()
	id := createViaHTTP(t, h, "exit", "30")

	outsider := identity.CompanyUser("user-b", companyB)
	rr := serve(t, h, &outsider, http.MethodPost, basePath+"/"+id+"/approve", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	admin := identity.Admin("root")
	rr = serve(t, h, &admin, http.MethodPost, basePath+"/missing/approve", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), `"detail":"not found: adjustment request"`)

	rr = serve(t, h, &admin, http.MethodPost, basePath+"/"+id+"/reject", `{"rejection_reason":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, nil, http.MethodGet, basePath+"/", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(t, h, &requester, http.MethodPost, basePath+"/", `{"item_id":"`+itemA+`","movement_type":"exit","quantity":500,"movement_date":"2025-03-01","reason":"too much stock"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = serve(t, h, &requester, http.MethodPost, basePath+"/", `{"item_id":"`+itemA+`","movement_type":"loss","quantity":5,"movement_date":"2025-03-01","reason":"bad type"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, &requester, http.MethodPost, basePath+"/", `{"item_id":"`+itemA+`","movement_type":"entry","quantity":5,"movement_date":"yesterday","reason":"bad date"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, &requester, http.MethodPost, basePath+"/", `{"item_id":"`+itemA+`","movement_type":"adjustment","quantity":-1,"movement_date":"2025-03-01","reason":"negative count"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, &requester, http.MethodPost, basePath+"/", `{"item_id":"`+itemA+`","movement_type":"entry","quantity":0,"movement_date":"2025-03-01","reason":"empty delivery"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerAdjustmentToZero(t *testing.T) {
	h, repo := newHandlerFixture()
	id := createViaHTTP(t, h, "adjustment", "0")

	approver := identity.Analyst(analystA)
	rr := serve(t, h, &approver, http.MethodPost, basePath+"/"+id+"/approve", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.InDelta(t, 0.0, repo.item(itemA).CurrentQuantity, 1e-9)
}

func TestHandlerReads(t *testing.T) {
	h, _ := newHandlerFixture()
	id := createViaHTTP(t, h, "entry", "5")

	owner := identity.Company(companyA)
	rr := serve(t, h, &owner, http.MethodGet, basePath+"/?status=pending&page=1&limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Requests []struct {
			ID string `json:"id"`
		} `json:"requests"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Requests, 1)
	assert.Equal(t, id, page.Requests[0].ID)
	assert.Equal(t, 1, page.Pagination.Total)

	rr = serve(t, h, &owner, http.MethodGet, basePath+"/?page=0", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, h, &owner, http.MethodGet, basePath+"/"+id, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, h, &owner, http.MethodGet, basePath+"/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"byStatus":[{"status":"pending","total":1}]`)

	other := identity.Analyst(analystB)
	rr = serve(t, h, &other, http.MethodGet, basePath+"/company/"+companyA, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
