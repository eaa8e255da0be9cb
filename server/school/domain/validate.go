package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("pathkey", func(fl validator.FieldLevel) bool {
		return ValidKey(fl.Field().String())
	})
	return v
}

var coordinatePattern = regexp.MustCompile(`^\s*-?\d+(\.\d+)?\s*,\s*-?\d+(\.\d+)?\s*$`)

// InputError is a failed struct validation. It matches ErrInvalidInput.
type InputError struct {
	Fields map[string]string
	detail string
}

func (e *InputError) Error() string { return ErrInvalidInput.Error() + ": " + e.detail }
func (e *InputError) Unwrap() error { return ErrInvalidInput }

// Validate runs struct tag validation and wraps failures in ErrInvalidInput.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	out := &InputError{detail: describe(err)}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out.Fields[fe.Field()] = fe.Tag()
		}
	}
	return out
}

// FieldErrors maps json field names to the failed rule, for API responses.
func FieldErrors(err error) map[string]string {
	var input *InputError
	if !errors.As(err, &input) {
		return nil
	}
	return input.Fields
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

// ValidateMessage checks that content matches the message kind: media kinds
// carry an absolute URL and locations carry "lat,lng".
func ValidateMessage(m MessageInput) error {
	if err := Validate(m); err != nil {
		return err
	}
	switch m.Kind {
	case MessageKindText:
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("%w: text message is empty", ErrInvalidInput)
		}
	case MessageKindPhoto, MessageKindVideo:
		if err := validate.Var(m.Content, "required,url"); err != nil {
			return fmt.Errorf("%w: %s content must be a url", ErrInvalidInput, m.Kind)
		}
	case MessageKindLocation:
		if !coordinatePattern.MatchString(m.Content) {
			return fmt.Errorf("%w: location content must be lat,lng", ErrInvalidInput)
		}
	case MessageKindAttributedText, MessageKindEmoji, MessageKindAudio,
		MessageKindContact, MessageKindCustom, MessageKindLinkPreview:
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidInput, m.Kind)
	}
	return nil
}
