package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Providers  []string `json:"providers" validate:"omitempty,dive,provider_id"`
	Mode       string   `json:"mode" validate:"omitempty,oneof=sequential parallel"`
	MaxRetries int      `json:"max_retries" validate:"gte=0,lte=10"`
	Prompt     string   `json:"prompt" validate:"required"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testRequest{Providers: []string{"openai", "play_ht"}, Mode: "parallel", MaxRetries: 3, Prompt: "a cat"}
		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("missing required field reports json name", func(t *testing.T) {
		err := ValidateStruct(&testRequest{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "prompt is required", fields["prompt"])
	})

	t.Run("invalid values", func(t *testing.T) {
		s := testRequest{Providers: []string{"Open AI"}, Mode: "round_robin", MaxRetries: 11, Prompt: "x"}

		fields := GetValidationFields(ValidateStruct(&s))
		require.Len(t, fields, 3)
		assert.Equal(t, "mode must be one of: sequential parallel", fields["mode"])
		assert.Equal(t, "max_retries must be less than or equal to 10", fields["max_retries"])
		assert.Equal(t, "providers[0] must be a lowercase provider identifier", fields["providers[0]"])
	})

	t.Run("negative retries", func(t *testing.T) {
		fields := GetValidationFields(ValidateStruct(&testRequest{MaxRetries: -1, Prompt: "x"}))
		assert.Equal(t, "max_retries must be greater than or equal to 0", fields["max_retries"])
	})
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "bad"}))
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}

func TestParseUUID(t *testing.T) {
	id := uuid.New()

	got, err := ParseUUID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUID("not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid UUID format")
}
