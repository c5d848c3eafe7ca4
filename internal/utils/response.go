// internal/utils/response.go
package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/i18n"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyValidationInvalid, "request")
	}
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAuthRequired)
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAdminAccessDenied)
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func NotFoundResponse(c *gin.Context, resource string) {
	lang := GetLangFromContext(c)
	message := i18n.T(lang, resource+".not_found")
	ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = i18n.T(GetLangFromContext(c), i18n.KeyInternalError)
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func TooManyRequestsResponse(c *gin.Context) {
	message := i18n.T(GetLangFromContext(c), i18n.KeyRateLimitExceeded)
	ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", message, nil)
}

var codeMessageKeys = map[string]string{
	apierr.CodeInvalidZip:          i18n.KeyEligibilityInvalidZip,
	apierr.CodeZipNotFound:         i18n.KeyZipNotFound,
	apierr.CodeProductNotFound:     i18n.KeyProductNotFound,
	apierr.CodeRuleNotFound:        i18n.KeyRuleNotFound,
	apierr.CodeViolationNotFound:   i18n.KeyViolationNotFound,
	apierr.CodeRuleLoad:            i18n.KeyRuleLoadFailed,
	apierr.CodeClassification:      i18n.KeyClassificationFailed,
	apierr.CodeIngestion:           i18n.KeyIngestionFailed,
	apierr.CodeAlreadyResolved:     i18n.KeyViolationAlreadyResolved,
	apierr.CodeDuplicateRule:       i18n.KeyRuleDuplicate,
	apierr.CodeRuleCategoryLocked:  i18n.KeyRuleCategoryLocked,
	apierr.CodeRevealNotPermitted:  i18n.KeyProductRevealNotPermitted,
	apierr.CodeExternalUnavailable: i18n.KeyExternalUnavailable,
}

// ServiceErrorResponse writes a service error as the envelope. Taxonomy
// errors keep their status and code; anything else is logged and reported
// as an internal error without its text.
func ServiceErrorResponse(c *gin.Context, err error) {
	e, ok := apierr.As(err)
	if !ok {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled service error")
		InternalErrorResponse(c, "")
		return
	}

	lang := GetLangFromContext(c)
	message := e.Message
	if key, known := codeMessageKeys[e.Code]; known {
		message = i18n.T(lang, key)
	}
	if message == "" {
		message = e.Error()
	}

	var details interface{}
	if e.Kind == apierr.KindValidation && e.Message != "" {
		details = gin.H{"reason": e.Message}
	}
	if e.Kind == apierr.KindExternal {
		logrus.WithError(err).WithField("code", e.Code).Warn("External dependency failed")
	}
	ErrorResponse(c, e.Status(), e.Code, message, details)
}

func ValidationErrorResponse(c *gin.Context, errors []ValidationError) {
	lang := GetLangFromContext(c)
	message := i18n.T(lang, i18n.KeyValidationInvalid, "input")
	ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", message, errors)
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, exists := c.Get("lang"); exists {
		if langStr, ok := lang.(string); ok {
			return langStr
		}
	}
	return "en"
}

func GetUserIDFromContext(c *gin.Context) (string, bool) {
	if userID, exists := c.Get("user_id"); exists {
		if userIDStr, ok := userID.(string); ok {
			return userIDStr, true
		}
	}
	return "", false
}

func GetUserTypeFromContext(c *gin.Context) (string, bool) {
	if userType, exists := c.Get("user_type"); exists {
		if userTypeStr, ok := userType.(string); ok {
			return userTypeStr, true
		}
	}
	return "", false
}
