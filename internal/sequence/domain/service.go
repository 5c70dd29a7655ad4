package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PersistFunc inserts the document carrying the issued number inside tx.
type PersistFunc func(tx *gorm.DB, issued Issued) error

type Service interface {
	// Next previews the number the next Issue would produce. Nothing is reserved.
	Next(ctx context.Context, companyID snowflake.ID, documentType DocumentType, at time.Time) (Issued, error)
	// Issue reserves a number and persists its document atomically, retrying on conflicts.
	Issue(ctx context.Context, db *gorm.DB, companyID snowflake.ID, documentType DocumentType, at time.Time, persist PersistFunc) (Issued, error)
}

var (
	ErrConcurrencyExhausted = errors.New("sequence_concurrency_exhausted")
	ErrUnknownDocumentType  = errors.New("unknown_document_type")
	ErrInvalidCompany       = errors.New("invalid_company")
	ErrPersistRequired      = errors.New("persist_required")
)
