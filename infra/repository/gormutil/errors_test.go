package gormutil

import (
	"errors"
	"testing"

	"github.com/amirasaad/carefund/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMapGormErrorToDomain(t *testing.T) {
	t.Parallel()

	boom := errors.New("some other error")
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{"nil error returns nil", nil, nil},
		{"duplicate key maps to ErrAlreadyExists", gorm.ErrDuplicatedKey, domain.ErrAlreadyExists},
		{"record not found maps to ErrNotFound", gorm.ErrRecordNotFound, domain.ErrNotFound},
		{"non-GORM error returns original", boom, boom},
		{"joined duplicate key maps correctly", errors.Join(errors.New("outer"), gorm.ErrDuplicatedKey), domain.ErrAlreadyExists},
		{"joined not found maps correctly", errors.Join(errors.New("outer"), gorm.ErrRecordNotFound), domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := MapGormErrorToDomain(tt.input)
			if tt.expected == nil {
				assert.NoError(t, result)
				return
			}
			assert.ErrorIs(t, result, tt.expected)
		})
	}
}

func TestWrapError(t *testing.T) {
	t.Parallel()
	err := WrapError(func() error { return gorm.ErrRecordNotFound })
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, WrapError(func() error { return nil }))
}

func TestTranslate(t *testing.T) {
	t.Parallel()
	assert.ErrorIs(t, Translate(gorm.ErrRecordNotFound, domain.ErrAccountNotFound, nil), domain.ErrAccountNotFound)
	assert.ErrorIs(t, Translate(gorm.ErrDuplicatedKey, nil, domain.ErrDuplicateReference), domain.ErrDuplicateReference)
	assert.ErrorIs(t, Translate(gorm.ErrDuplicatedKey, domain.ErrAccountNotFound, nil), domain.ErrAlreadyExists)
	assert.NoError(t, Translate(nil, domain.ErrAccountNotFound, nil))
}
