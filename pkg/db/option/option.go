// Package option provides composable gorm query options used by the
// generic repository.
package option

import (
	"fmt"

	"gorm.io/gorm"
)

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// Condition is a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a WHERE clause for the given condition.
func ApplyOperator(cond Condition) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		switch cond.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", cond.Field), cond.Value)
		default:
			return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
		}
	})
}

// WithOrder sorts results by the given column expression.
func WithOrder(order string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	})
}

// WithLimitOffset applies offset pagination.
func WithLimitOffset(limit, offset int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	})
}
