package validator

import (
	"context"
	"errors"

	"github.com/go-playground/validator"

	"gathered/internal/engine"
)

var global *validator.Validate

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ymd", validateDate)
	_ = v.RegisterValidation("hhmm", validateClock)
	_ = v.RegisterValidation("override", validateOverride)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validateDate(fl validator.FieldLevel) bool {
	_, ok := engine.ParseDate(fl.Field().String())
	return ok
}

func validateClock(fl validator.FieldLevel) bool {
	_, ok := engine.ParseClock(fl.Field().String())
	return ok
}

func validateOverride(fl validator.FieldLevel) bool {
	return engine.Override(fl.Field().String()).Valid()
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
		if ve.Kind().String() == "int" {
			msg = ErrFieldExceedsMaxVal
		}
	case "min":
		msg = ErrFieldBelowMinLen
		if ve.Kind().String() == "int" {
			msg = ErrFieldBelowMinVal
		}
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "ymd":
		msg = "Date must be formatted as YYYY-MM-DD"
	case "hhmm":
		msg = "Time must be formatted as HH:MM or HH:MM:SS"
	case "override":
		msg = "Override must be one of AUTO, OPEN_MANUAL, CLOSED_MANUAL, ONGOING, FULL"
	case "oneof", "url":
		msg = ErrInvalidFormat
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
