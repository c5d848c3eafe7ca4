// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyError         = "error"
	KeyInternalError = "internal.error"
	KeyRouteNotFound = "route.not_found"

	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthTokenExpired  = "auth.token_expired"
	KeyAdminAccessDenied = "admin.access_denied"

	// Validation
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationRequired = "validation.required"
	KeyRateLimitExceeded  = "rate_limit.exceeded"

	// Eligibility
	KeyEligibilityInvalidZip = "eligibility.invalid_zip"
	KeyZipNotFound           = "zip.not_found"
	KeyRuleLoadFailed        = "eligibility.rule_load_failed"

	// Catalog
	KeyProductNotFound           = "product.not_found"
	KeyProductRevealed           = "product.revealed"
	KeyProductRevealNotPermitted = "product.reveal_not_permitted"
	KeyProductCategoryAssigned   = "product.category_assigned"

	// Rules
	KeyRuleNotFound       = "rule.not_found"
	KeyRuleCreated        = "rule.created"
	KeyRuleUpdated        = "rule.updated"
	KeyRuleDuplicate      = "rule.duplicate"
	KeyRuleCategoryLocked = "rule.category_locked"

	// Violations
	KeyViolationNotFound        = "violation.not_found"
	KeyViolationResolved        = "violation.resolved"
	KeyViolationAlreadyResolved = "violation.already_resolved"

	// Classification and lab certificates
	KeyClassificationFailed = "classification.failed"
	KeyIngestionFailed      = "ingestion.failed"
	KeyCOAFileRequired      = "coa.file_required"
	KeyCOAUploadFailed      = "coa.upload_failed"
	KeyExternalUnavailable  = "external.unavailable"
)
