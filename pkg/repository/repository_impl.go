// Package repository holds the query scopes shared by the gorm repositories.
package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope narrows a query.
type Scope func(*gorm.DB) *gorm.DB

func ByID(id snowflake.ID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

func ByCompany(companyID snowflake.ID) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("company_id = ?", companyID)
	}
}

// ForUpdate takes a row lock. Dialects without FOR UPDATE ignore it.
func ForUpdate() Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
}

func Limit(n int) Scope {
	return func(db *gorm.DB) *gorm.DB {
		if n <= 0 || n > 500 {
			n = 100
		}
		return db.Limit(n)
	}
}

// FindOne returns the first match, or nil when nothing matches.
func FindOne[T any](ctx context.Context, db *gorm.DB, scopes ...Scope) (*T, error) {
	var result T
	stmt := db.WithContext(ctx).Model(new(T))
	for _, scope := range scopes {
		stmt = scope(stmt)
	}
	err := stmt.Take(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// Find returns every match.
func Find[T any](ctx context.Context, db *gorm.DB, scopes ...Scope) ([]*T, error) {
	var result []*T
	stmt := db.WithContext(ctx).Model(new(T))
	for _, scope := range scopes {
		stmt = scope(stmt)
	}
	if err := stmt.Find(&result).Error; err != nil {
		return nil, err
	}
	return result, nil
}
