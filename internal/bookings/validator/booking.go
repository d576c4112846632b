package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"medibook/pkg/logger"
	"medibook/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("practitioner_id", func(fl validator.FieldLevel) bool {
		return model.PractitionerIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		log.Fatal("Failed to register 'practitioner_id' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

// ValidateCommit checks the request shape. Whether the start lies in the
// future is decided by the committer once the booked times are known.
func (v *BookingValidator) ValidateCommit(req *model.CommitRequest) error {
	if err := v.check(req); err != nil {
		return err
	}

	if req.SlotID != "" && req.PractitionerID != "" {
		return ValidationErrors{{
			Field:   "slot_id",
			Message: "provide either slot_id or practitioner_id with start_time and end_time, not both",
		}}
	}
	if !req.IsSlotBound() && !req.EndTime.After(*req.StartTime) {
		return ValidationErrors{{
			Field:   "end_time",
			Message: "end_time must be after start_time",
		}}
	}
	return nil
}

func (v *BookingValidator) ValidateLock(req *model.LockRequest) error {
	return v.check(req)
}

func (v *BookingValidator) ValidateUnlock(req *model.UnlockRequest) error {
	return v.check(req)
}

func (v *BookingValidator) ValidateCancel(req *model.CancelRequest) error {
	return v.check(req)
}

func (v *BookingValidator) check(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "required_without":
			message = fmt.Sprintf("%s is required when %s is missing", err.Field(), jsonName(err.Param()))
		case "required_with":
			message = fmt.Sprintf("%s is required when %s is set", err.Field(), jsonName(err.Param()))
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "e164":
			message = fmt.Sprintf("%s must be a valid phone number (e.g., +14155552671)", err.Field())
		case "practitioner_id":
			message = fmt.Sprintf("%s must be 1-64 letters, digits, '.', '_', ':' or '-'", err.Field())
		}

		field := err.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		validationErrors = append(validationErrors, ValidationError{
			Field:   field,
			Message: message,
		})
	}

	return validationErrors
}

// jsonName maps the Go field names used in cross-field tag params.
func jsonName(field string) string {
	switch field {
	case "SlotID":
		return "slot_id"
	case "PractitionerID":
		return "practitioner_id"
	}
	return field
}
