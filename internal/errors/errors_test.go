package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raystack/scale/internal/errors"
)

func TestDomainError(t *testing.T) {
	t.Run("formats type entity and message", func(t *testing.T) {
		err := errors.InvalidDefinition("recipeDefinition", "CIRCULAR_DEPENDENCY", "job x has a circular dependency")

		assert.EqualError(t, err, "invalid definition for entity recipeDefinition: job x has a circular dependency")
		assert.Equal(t, "CIRCULAR_DEPENDENCY", errors.KeyOf(err))
		assert.True(t, errors.IsErrorType(err, errors.ErrInvalidDefinition))
	})
	t.Run("includes the cause of internal errors", func(t *testing.T) {
		cause := errors.NotFound("job", "job 1 not found")
		err := errors.InternalError("store", "unable to lock jobs", assert.AnError)

		assert.EqualError(t, err, "internal error for entity store: unable to lock jobs: "+assert.AnError.Error())
		assert.True(t, errors.Is(err, assert.AnError))
		assert.False(t, errors.Is(err, cause))
	})
	t.Run("Wrap", func(t *testing.T) {
		t.Run("returns nil for nil error", func(t *testing.T) {
			assert.Nil(t, errors.Wrap("recipe", "unable to parse", nil))
		})
		t.Run("keeps the type and key of a domain error", func(t *testing.T) {
			inner := errors.InvalidData("recipeData", "MISSING_INPUT", "input foo is required")

			err := errors.Wrap("recipe", "unable to create recipe", inner)

			assert.True(t, errors.IsErrorType(err, errors.ErrInvalidData))
			assert.Equal(t, "MISSING_INPUT", errors.KeyOf(err))
			assert.EqualError(t, err, "invalid data for entity recipe: unable to create recipe: input foo is required")
		})
		t.Run("turns other errors into internal errors", func(t *testing.T) {
			err := errors.Wrap("recipe", "unable to create recipe", assert.AnError)

			assert.True(t, errors.IsErrorType(err, errors.ErrInternalError))
			assert.Equal(t, "", errors.KeyOf(err))
		})
	})
}
