// Package validator wraps go-playground/validator for settings structs and
// reports failures as configuration errors with one suggestion per field.
package validator

import (
	"fmt"
	"reflect"
	"strings"

	gvalidator "github.com/go-playground/validator/v10"

	"github.com/milan604/sessionhttp/pkg/errors"
)

// TagErrorBuilder renders the message for one failed tag.
type TagErrorBuilder func(fe gvalidator.FieldError) string

// Validator is the wrapper around go-playground validator with extra features.
type Validator struct {
	v                *gvalidator.Validate
	tagErrorBuilders map[string]TagErrorBuilder
}

// New creates a Validator that names fields after their mapstructure or json tag,
// so messages match the keys used in config files.
func New() *Validator {
	v := gvalidator.New(gvalidator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)

	return &Validator{
		v:                v,
		tagErrorBuilders: make(map[string]TagErrorBuilder),
	}
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"mapstructure", "json"} {
		if name := getTagName(f, tag); name != "" {
			return name
		}
	}
	return f.Name
}

func getTagName(f reflect.StructField, tagName string) string {
	tagValue := f.Tag.Get(tagName)
	if tagValue == "-" {
		return ""
	}
	return strings.SplitN(tagValue, ",", 2)[0]
}

// RegisterValidation registers a custom validator (name) to the engine.
func (vi *Validator) RegisterValidation(tag string, fn gvalidator.Func) error {
	return vi.v.RegisterValidation(tag, fn)
}

// RegisterTagError overrides the message produced for tag.
func (vi *Validator) RegisterTagError(tag string, builder TagErrorBuilder) {
	vi.tagErrorBuilders[tag] = builder
}

// Struct validates s. It returns nil or a *errors.ConfigurationError.
func (vi *Validator) Struct(s any) error {
	if err := vi.v.Struct(s); err != nil {
		return vi.ParseError(err)
	}
	return nil
}

// ParseError converts a validator error into a ConfigurationError.
func (vi *Validator) ParseError(err error) *errors.ConfigurationError {
	if err == nil {
		return nil
	}

	var ve gvalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return errors.Configuration("invalid settings").WithCause(err)
	}

	ce := errors.Configuration("invalid settings")
	for _, fe := range ve {
		ce.WithSuggestion(fieldPath(fe), vi.buildMessageForField(fe))
	}
	return ce
}

// fieldPath strips the root struct name from the namespace.
func fieldPath(fe gvalidator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func (vi *Validator) buildMessageForField(fe gvalidator.FieldError) string {
	if b, ok := vi.tagErrorBuilders[fe.Tag()]; ok && b != nil {
		return b(fe)
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed on '%s' validation (param=%s)", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed on '%s' validation", fe.Tag())
}

var std = New()

// Validate validates s with the shared Validator.
func Validate(s any) error {
	return std.Struct(s)
}
