package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrDefault(t *testing.T) {
	type payload struct {
		GoalID string `json:"goalId"`
	}
	def := map[string]bool{"fallback": true}

	assert.Equal(t, def, ParseOrDefault([]byte(nil), def))
	assert.Equal(t, def, ParseOrDefault([]byte("  null "), def))
	assert.Equal(t, def, ParseOrDefault([]byte("{broken"), def))
	assert.Equal(t, map[string]bool{"canViewGoals": false}, ParseOrDefault([]byte(`{"canViewGoals":false}`), def))

	got := ParseOrDefault[*payload]([]byte(`{"goalId":"abc"}`), nil)
	if assert.NotNil(t, got) {
		assert.Equal(t, "abc", got.GoalID)
	}
	assert.Nil(t, ParseOrDefault[*payload]([]byte(`[1,2]`), nil))
}

func TestNewPaginationClampsInput(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 45, TotalPages: 3}, p)

	p = NewPagination(2, 500, 250)
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 100, Offset(2, 500))
}

func TestAuditLogValidate(t *testing.T) {
	err := AuditLog{ActorType: "admin", Action: "approve", Entity: "adjustment_request"}.validate()
	assert.Error(t, err)
	err = AuditLog{Action: "approve", Entity: "adjustment_request", EntityID: "x"}.validate()
	assert.Error(t, err)
	err = AuditLog{ActorType: "admin", ActorID: "1", Action: "approve", Entity: "adjustment_request", EntityID: "x"}.validate()
	assert.NoError(t, err)
}
