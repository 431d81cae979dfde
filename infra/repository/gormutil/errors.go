// Package gormutil maps GORM and driver errors to domain errors.
package gormutil

import (
	"errors"

	"github.com/amirasaad/carefund/pkg/domain"
	"gorm.io/gorm"
)

// MapGormErrorToDomain converts GORM errors to domain errors.
// Traverses the error chain to find GORM errors and maps them to appropriate domain errors.
// Requires gorm.Config.TranslateError so driver unique violations surface as
// gorm.ErrDuplicatedKey.
func MapGormErrorToDomain(err error) error {
	if err == nil {
		return nil
	}

	currentErr := err
	for currentErr != nil {
		switch {
		case errors.Is(currentErr, gorm.ErrDuplicatedKey):
			return domain.ErrAlreadyExists
		case errors.Is(currentErr, gorm.ErrRecordNotFound):
			return domain.ErrNotFound
		}
		currentErr = errors.Unwrap(currentErr)
	}

	return err
}

// WrapError wraps a GORM operation and automatically maps errors.
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(&rows).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}

// Translate maps GORM errors and then swaps generic not-found / already-exists
// errors for the more specific ones the caller passes.
func Translate(err error, notFound, duplicate error) error {
	mapped := MapGormErrorToDomain(err)
	switch {
	case mapped == nil:
		return nil
	case notFound != nil && errors.Is(mapped, domain.ErrNotFound):
		return notFound
	case duplicate != nil && errors.Is(mapped, domain.ErrAlreadyExists):
		return duplicate
	default:
		return mapped
	}
}
