package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("assign: %w", Conflict("r1", "cannot move registration"))

	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, Is(err, KindConflict))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestExternal_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := External("exam service", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "exam service unavailable: connection refused", err.Error())
	assert.Equal(t, "exam service unavailable", Reason(err))
}

func TestNotFound(t *testing.T) {
	appErr, ok := As(NotFound("registration", "r9"))
	require.True(t, ok)

	assert.Equal(t, KindNotFound, appErr.Kind)
	assert.Equal(t, "registration not found", appErr.Message)
	assert.Equal(t, "r9", appErr.EntityID)
}

func TestValidation_Fields(t *testing.T) {
	err := Validation("invalid request", FieldError{Field: "course_ids", Message: "too many"})

	appErr, ok := As(err)
	require.True(t, ok)
	assert.Len(t, appErr.Fields, 1)
	assert.Equal(t, "course_ids", appErr.Fields[0].Field)
}
