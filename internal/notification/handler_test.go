package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermemayrinkal/agribackend/internal/identity"
	"github.com/guilhermemayrinkal/agribackend/internal/subscription"
)

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/notifications", NewHandler(nil, f.svc).MountRoutes)
	return r
}

func doRequest(t *testing.T, h http.Handler, caller *identity.Caller, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if caller != nil {
		req = req.WithContext(identity.WithCaller(req.Context(), *caller))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRequiresCaller(t *testing.T) {
	f := newFixture(nil)
	rr := doRequest(t, newTestRouter(f), nil, http.MethodGet, "/api/notifications/", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerListAndUnreadCount(t *testing.T) {
	f := newFixture(nil)
	_, _, err := f.svc.CreateEvent(context.Background(), CreateEventInput{
		Category:   CategoryGoal,
		Title:      "Goal created",
		Data:       map[string]string{"goalId": "abc"},
		Recipients: []identity.Recipient{companyRecipient},
	})
	require.NoError(t, err)
	router := newTestRouter(f)
	caller := identity.Company("company-1")

	rr := doRequest(t, router, &caller, http.MethodGet, "/api/notifications/?unread_only=1&limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []struct {
			DeliveryID string         `json:"delivery_id"`
			Type       string         `json:"type"`
			Data       map[string]any `json:"data"`
		} `json:"data"`
		HasMore bool `json:"has_more"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "goal", body.Data[0].Type)
	assert.Equal(t, "abc", body.Data[0].Data["goalId"])
	assert.False(t, body.HasMore)

	rr = doRequest(t, router, &caller, http.MethodGet, "/api/notifications/unread-count", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"count":1}`, rr.Body.String())

	rr = doRequest(t, router, &caller, http.MethodPut, "/api/notifications/"+body.Data[0].DeliveryID+"/read", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, router, &caller, http.MethodGet, "/api/notifications/unread-count", "")
	assert.JSONEq(t, `{"count":0}`, rr.Body.String())
}

func TestHandlerRejectsBadQuery(t *testing.T) {
	f := newFixture(nil)
	router := newTestRouter(f)
	caller := identity.Analyst("analyst-1")

	rr := doRequest(t, router, &caller, http.MethodGet, "/api/notifications/?before=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = doRequest(t, router, &caller, http.MethodGet, "/api/notifications/?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerMapsDeliveryErrors(t *testing.T) {
	f := newFixture(nil)
	id, _, err := f.svc.CreateEvent(context.Background(), CreateEventInput{
		Category:   CategorySystem,
		Title:      "n",
		Recipients: []identity.Recipient{companyRecipient},
	})
	require.NoError(t, err)
	deliveryID := f.repo.deliveriesFor(id)[0].ID
	router := newTestRouter(f)

	stranger := identity.Company("company-2")
	rr := doRequest(t, router, &stranger, http.MethodDelete, "/api/notifications/"+deliveryID, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	owner := identity.Company("company-1")
	rr = doRequest(t, router, &owner, http.MethodPut, "/api/notifications/nope/read", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, &owner, http.MethodDelete, "/api/notifications/"+deliveryID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(t, router, &owner, http.MethodPost, "/api/notifications/read-all", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"updated":0}`, rr.Body.String())
}

func TestHandlerCreateEvent(t *testing.T) {
	f := newFixture(staticPermissions{"company-1": {subscription.CanViewReports: false}})
	router := newTestRouter(f)

	admin := identity.Admin("root")
	body := `{"company_id":"company-1","type":"report","title":"Q1 report","data":{"reportId":"r1"},
		"recipients":[{"recipient_type":"company","recipient_id":"company-1"},{"recipient_type":"analyst","recipient_id":"analyst-1"}]}`
	rr := doRequest(t, router, &admin, http.MethodPost, "/api/notifications/", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		EventID *string `json:"event_id"`
		Created bool    `json:"created"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.True(t, created.Created)
	require.NotNil(t, created.EventID)
	assert.Len(t, f.repo.deliveriesFor(*created.EventID), 1)

	body = `{"company_id":"company-1","type":"report","title":"Q1 report","recipients":[{"recipient_type":"company","recipient_id":"company-1"}]}`
	rr = doRequest(t, router, &admin, http.MethodPost, "/api/notifications/", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"event_id":null,"created":false}`, rr.Body.String())

	company := identity.Company("company-1")
	rr = doRequest(t, router, &company, http.MethodPost, "/api/notifications/", body)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, router, &admin, http.MethodPost, "/api/notifications/", `{"type":"weather","title":"x","recipients":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
