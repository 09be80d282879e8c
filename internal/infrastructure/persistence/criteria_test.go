package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCriteria_Empty(t *testing.T) {
	where, args := NewCriteria().Where()
	assert.Equal(t, "", where)
	assert.Nil(t, args)
}

func TestCriteria_OptionalFiltersSkipNil(t *testing.T) {
	dept := "FINANCE"
	c := NewCriteria().
		EqString("department", &dept).
		EqString("document_type", nil).
		EqBool("is_enabled", nil)

	where, args := c.Where()
	assert.Equal(t, " WHERE department = ?", where)
	assert.Equal(t, []interface{}{"FINANCE"}, args)
}

func TestCriteria_Conjunction(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewCriteria().
		Eq("status", "ACTIVE").
		Before("due_date", now).
		IsNull("deleted_at")

	where, args := c.Where()
	assert.Equal(t, " WHERE status = ? AND due_date < ? AND deleted_at IS NULL", where)
	assert.Equal(t, []interface{}{"ACTIVE", now}, args)
}

func TestCriteria_Between(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)
	where, args := NewCriteria().Between("expiry_date", from, to).Where()

	assert.Equal(t, " WHERE expiry_date BETWEEN ? AND ?", where)
	assert.Len(t, args, 2)
}

func TestCriteria_In(t *testing.T) {
	where, args := NewCriteria().In("status", []string{"PENDING", "IN_PROGRESS"}).Where()
	assert.Equal(t, " WHERE status IN (?, ?)", where)
	assert.Equal(t, []interface{}{"PENDING", "IN_PROGRESS"}, args)

	// Empty set must never widen to an unfiltered scan
	where, _ = NewCriteria().In("status", nil).Where()
	assert.Equal(t, " WHERE 1 = 0", where)
}

func TestPage_Clause(t *testing.T) {
	assert.Equal(t, "", Page{}.Clause())
	assert.Equal(t, " LIMIT 100", Page{Limit: 100}.Clause())
	assert.Equal(t, " LIMIT 50 OFFSET 100", Page{Limit: 50, Offset: 100}.Clause())
}
