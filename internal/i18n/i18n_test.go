package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations(t *testing.T) {
	require.NoError(t, Initialize("en"))

	assert.Equal(t, "ZIP code not found", T("en", KeyZipNotFound))
	assert.Equal(t, "Código postal no encontrado", T("es", KeyZipNotFound))
	assert.Equal(t, "Invalid zip", T("en", KeyValidationInvalid, "zip"))
	assert.Equal(t, "ZIP code not found", T("fr", KeyZipNotFound), "unknown languages fall back to the default")
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))
	assert.Equal(t, []string{"en", "es"}, GetSupportedLanguages())
	assert.True(t, IsSupported("es"))
}

func TestLocalesCoverEveryKey(t *testing.T) {
	require.NoError(t, Initialize("en"))

	keys := []string{
		KeyInternalError, KeyAuthRequired, KeyAuthInvalidToken, KeyAuthTokenExpired, KeyAdminAccessDenied,
		KeyValidationInvalid, KeyValidationRequired, KeyRateLimitExceeded,
		KeyEligibilityInvalidZip, KeyZipNotFound, KeyRuleLoadFailed,
		KeyProductNotFound, KeyProductRevealed, KeyProductRevealNotPermitted, KeyProductCategoryAssigned,
		KeyRuleNotFound, KeyRuleCreated, KeyRuleUpdated, KeyRuleDuplicate, KeyRuleCategoryLocked, KeyRouteNotFound,
		KeyViolationNotFound, KeyViolationResolved, KeyViolationAlreadyResolved,
		KeyClassificationFailed, KeyIngestionFailed, KeyCOAFileRequired, KeyCOAUploadFailed, KeyExternalUnavailable,
	}
	for _, lang := range []string{"en", "es"} {
		for _, key := range keys {
			_, ok := instance.lookup(lang, key)
			assert.True(t, ok, "%s missing %s", lang, key)
		}
	}
}
