// Package utils provides request validation helpers.
package utils

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
)

var defaultValidator *validator.Validate

func init() {
	defaultValidator = validator.New()
	_ = defaultValidator.RegisterValidation("uuid", validateUUID)
	_ = defaultValidator.RegisterValidation("hashkind", validateHashKind)
}

// Validator returns the shared validator so transports can register it
// with their binding layer.
func Validator() *validator.Validate {
	return defaultValidator
}

// ValidateStruct validates s and returns an invalid_request error carrying
// one metadata entry per failed field.
func ValidateStruct(s interface{}) errors.ServiceError {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return errors.ErrInvalidRequest(err.Error())
	}

	svcErr := errors.ErrInvalidRequest("request validation failed")
	for _, fe := range validationErrors {
		svcErr = svcErr.WithMetadata(toSnakeCase(fe.Field()), formatValidationError(fe))
	}
	return svcErr
}

func validateUUID(fl validator.FieldLevel) bool {
	_, err := uuid.Parse(fl.Field().String())
	return err == nil
}

func validateHashKind(fl validator.FieldLevel) bool {
	_, err := apikey.ParseHashKind(fl.Field().String())
	return err == nil
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "hashkind":
		return "must be one of sha256, sha512, bcrypt, pbkdf2-100k"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// toSnakeCase converts CamelCase field names to snake_case.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
