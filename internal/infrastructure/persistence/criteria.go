package persistence

import (
	"fmt"
	"strings"
	"time"
)

// Criteria builds a conjunctive WHERE clause from optional typed filters.
// A filter added with a nil pointer is ignored, which mirrors the store's
// "null means don't filter on this" query convention. All values are bound
// as placeholders; column names come from trusted constants, never callers.
type Criteria struct {
	conds []string
	args  []interface{}
}

// NewCriteria creates an empty criteria set
func NewCriteria() *Criteria {
	return &Criteria{}
}

// Eq adds an equality filter
func (c *Criteria) Eq(column string, value interface{}) *Criteria {
	c.conds = append(c.conds, column+" = ?")
	c.args = append(c.args, value)
	return c
}

// EqString adds an equality filter when value is non-nil
func (c *Criteria) EqString(column string, value *string) *Criteria {
	if value != nil {
		c.Eq(column, *value)
	}
	return c
}

// EqBool adds an equality filter when value is non-nil
func (c *Criteria) EqBool(column string, value *bool) *Criteria {
	if value != nil {
		c.Eq(column, *value)
	}
	return c
}

// Before adds a strict upper bound on a time column
func (c *Criteria) Before(column string, t time.Time) *Criteria {
	c.conds = append(c.conds, column+" < ?")
	c.args = append(c.args, t)
	return c
}

// AtOrBefore adds an inclusive upper bound on a time column
func (c *Criteria) AtOrBefore(column string, t time.Time) *Criteria {
	c.conds = append(c.conds, column+" <= ?")
	c.args = append(c.args, t)
	return c
}

// Between adds an inclusive range filter on a time column
func (c *Criteria) Between(column string, from, to time.Time) *Criteria {
	c.conds = append(c.conds, column+" BETWEEN ? AND ?")
	c.args = append(c.args, from, to)
	return c
}

// In adds a set-membership filter; an empty set produces a always-false
// condition so callers get an empty result instead of an unfiltered scan.
func (c *Criteria) In(column string, values []string) *Criteria {
	if len(values) == 0 {
		c.conds = append(c.conds, "1 = 0")
		return c
	}
	placeholders := strings.Repeat("?, ", len(values))
	c.conds = append(c.conds, fmt.Sprintf("%s IN (%s)", column, placeholders[:len(placeholders)-2]))
	for _, v := range values {
		c.args = append(c.args, v)
	}
	return c
}

// IsNull adds a null check
func (c *Criteria) IsNull(column string) *Criteria {
	c.conds = append(c.conds, column+" IS NULL")
	return c
}

// NotNull adds a not-null check
func (c *Criteria) NotNull(column string) *Criteria {
	c.conds = append(c.conds, column+" IS NOT NULL")
	return c
}

// Where renders the clause (including the leading " WHERE ") and the bound
// arguments. An empty criteria renders an empty string.
func (c *Criteria) Where() (string, []interface{}) {
	if len(c.conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(c.conds, " AND "), c.args
}

// Page bounds a discovery query so it returns quickly
type Page struct {
	Limit  int
	Offset int
}

// Clause renders the LIMIT/OFFSET suffix; a zero limit means no bound
func (p Page) Clause() string {
	if p.Limit <= 0 {
		return ""
	}
	if p.Offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", p.Limit, p.Offset)
	}
	return fmt.Sprintf(" LIMIT %d", p.Limit)
}
