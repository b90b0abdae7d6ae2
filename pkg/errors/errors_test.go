package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithInternalKeepsOriginalUntouched(t *testing.T) {
	inner := errors.New("duplicate key")
	wrapped := ErrConflict.WithInternal(inner)

	require.Nil(t, ErrConflict.Internal)
	require.Equal(t, ErrConflict.Code, wrapped.Code)
	require.ErrorIs(t, wrapped, inner)
	require.Contains(t, wrapped.Error(), "duplicate key")
}

func TestFromErrorUnwrapsNestedAppError(t *testing.T) {
	appErr := New("DATA_SCOPE_INVALID", "Data scope invalid", http.StatusBadRequest)
	wrapped := fmt.Errorf("service: %w", appErr)

	got := FromError(wrapped)
	require.Equal(t, "DATA_SCOPE_INVALID", got.Code)
	require.Equal(t, http.StatusBadRequest, got.StatusCode)
}

func TestFromErrorDefaultsToInternalServer(t *testing.T) {
	got := FromError(errors.New("boom"))
	require.Equal(t, ErrInternalServer.Code, got.Code)
	require.Equal(t, http.StatusInternalServerError, got.StatusCode)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	specialised := ErrConflict.WithMessage("Data scope name already exists")
	require.ErrorIs(t, specialised, ErrConflict)

	wrapped := fmt.Errorf("service: %w", specialised)
	require.ErrorIs(t, wrapped, ErrConflict)
	require.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestWithMessageOverridesMessageOnly(t *testing.T) {
	got := ErrNotFound.WithMessage("Data rule does not exist")
	require.Equal(t, ErrNotFound.Code, got.Code)
	require.Equal(t, "Data rule does not exist", got.Message)
	require.Equal(t, "Resource not found", ErrNotFound.Message)
}
