// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/greenleaf/compliance-engine/internal/models"
)

var validate *validator.Validate

var (
	zipPattern   = regexp.MustCompile(`^\d{5}$`)
	statePattern = regexp.MustCompile(`^[A-Z]{2}$`)
	slugPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{1,99}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("zip5", validateZip)
	validate.RegisterValidation("us_state", validateState)
	validate.RegisterValidation("rule_name", validateRuleName)
	validate.RegisterValidation("compliance_category", validateCategory)
	validate.RegisterValidation("compliance_action", validateAction)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// IsValidZip reports whether zip is exactly five ASCII digits.
func IsValidZip(zip string) bool {
	return zipPattern.MatchString(zip)
}

func validateZip(fl validator.FieldLevel) bool {
	return IsValidZip(fl.Field().String())
}

func validateState(fl validator.FieldLevel) bool {
	return statePattern.MatchString(fl.Field().String())
}

func validateRuleName(fl validator.FieldLevel) bool {
	return slugPattern.MatchString(fl.Field().String())
}

func validateCategory(fl validator.FieldLevel) bool {
	return models.Category(fl.Field().String()).Valid()
}

func validateAction(fl validator.FieldLevel) bool {
	return models.Action(fl.Field().String()).Valid()
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "zip5":
		return e.Field() + " must be exactly 5 digits"
	case "us_state":
		return e.Field() + " must be a two-letter upper-case state code"
	case "rule_name":
		return e.Field() + " must be a lower-case slug of letters, digits and underscores"
	case "compliance_category":
		return e.Field() + " must be one of thca, kratom, seven_hydroxy, nicotine, tobacco, cbd, other"
	case "compliance_action":
		return e.Field() + " must be one of hide, restrict, flag, require_verification"
	default:
		return e.Field() + " is invalid"
	}
}
