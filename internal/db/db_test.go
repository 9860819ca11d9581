package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestWrapNotFound(t *testing.T) {
	assert.NoError(t, WrapNotFound(nil))
	assert.ErrorIs(t, WrapNotFound(pgx.ErrNoRows), ErrNotFound)

	other := errors.New("boom")
	wrapped := WrapNotFound(other)
	assert.ErrorIs(t, wrapped, other)
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)))
}

func TestIsUniqueViolation(t *testing.T) {
	slot := &pgconn.PgError{Code: "23505", ConstraintName: "reservations_slot_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"any constraint", slot, "", true},
		{"named constraint", slot, "reservations_slot_key", true},
		{"wrapped", fmt.Errorf("insert: %w", slot), "reservations_slot_key", true},
		{"other constraint", slot, "users_username_key", false},
		{"other code", &pgconn.PgError{Code: "23503"}, "", false},
		{"plain error", errors.New("duplicate"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, tt.constraint))
		})
	}
}
