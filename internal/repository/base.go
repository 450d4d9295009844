// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"

	"lumen/internal/database"
	"lumen/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// isUniqueViolation reports whether err came from a unique constraint, either
// translated by gorm or as a raw Postgres error.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isForeignKeyViolation reports whether err came from a foreign key that
// points at a missing row.
func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// wrap maps storage errors onto AppErrors. AppErrors pass through untouched.
func wrap(err error, resource string, id interface{}) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	if isUniqueViolation(err) {
		return &models.AppError{
			Code:    models.CodeConflict,
			Reason:  models.ReasonDuplicate,
			Message: resource + " already exists",
			Err:     err,
		}
	}
	if isForeignKeyViolation(err) {
		return &models.AppError{
			Code:    models.CodeNotFound,
			Message: resource + " refers to a record that does not exist",
			Err:     err,
		}
	}
	return models.NewInternalError(err)
}

func paginate(db *gorm.DB, page models.PageRequest) *gorm.DB {
	return db.Limit(page.Size).Offset(page.Offset())
}
