package validator_test

import (
	"testing"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/validator"
)

type inner struct {
	Limit int `mapstructure:"limit" validate:"gte=1"`
}

type sample struct {
	Name  string `mapstructure:"name" validate:"required"`
	Inner inner  `mapstructure:"inner"`
}

type withMode struct {
	Mode string `json:"mode" validate:"omitempty,even"`
}

func TestValidate_ReportsConfigKeys(t *testing.T) {
	err := validator.Validate(sample{Inner: inner{Limit: 0}})
	require.Error(t, err)

	var ce *errors.ConfigurationError
	require.True(t, errors.As(err, &ce))
	fields := map[string]string{}
	for _, s := range ce.Suggestions {
		fields[s.Field] = s.Message
	}
	assert.Contains(t, fields, "name")
	assert.Equal(t, "failed on 'gte' validation (param=1)", fields["inner.limit"])
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validator.Validate(sample{Name: "x", Inner: inner{Limit: 1}}))
}

func TestCustomTagAndMessage(t *testing.T) {
	v := validator.New()
	require.NoError(t, v.RegisterValidation("even", func(fl gvalidator.FieldLevel) bool {
		return len(fl.Field().String())%2 == 0
	}))
	v.RegisterTagError("even", func(gvalidator.FieldError) string { return "must have even length" })

	assert.NoError(t, v.Struct(withMode{Mode: "ev"}))
	err := v.Struct(withMode{Mode: "odd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode: must have even length")
	assert.True(t, errors.IsConfiguration(err))
}
