package planner

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/yanqian/cycleroute/pkg/errors"
)

var (
	validatorOnce sync.Once
	requestCheck  *validator.Validate
)

func requestValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		requestCheck = v
	})
	return requestCheck
}

// ValidateRequest rejects malformed plan requests before any upstream call.
func ValidateRequest(req PlanRequest) error {
	if err := requestValidator().Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return apperrors.Wrap(CodeInvalidInput, strings.Join(msgs, "; "), nil)
		}
		return apperrors.Wrap(CodeInvalidInput, "invalid plan request", err)
	}
	if req.DepartureTime.IsZero() {
		return apperrors.Wrap(CodeInvalidInput, "departure_time is required", nil)
	}
	return nil
}

// ValidateLocation checks a single point for the forecast endpoint.
func ValidateLocation(loc Location) error {
	if err := requestValidator().Struct(loc); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return apperrors.Wrap(CodeInvalidInput, describeFieldError(fieldErrs[0]), nil)
		}
		return apperrors.Wrap(CodeInvalidInput, "invalid location", err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
