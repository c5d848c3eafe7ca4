// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/greenleaf/compliance-engine/internal/i18n"
)

// I18nMiddleware picks the first supported language from Accept-Language,
// falling back to defaultLang.
func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return func(c *gin.Context) {
		c.Set("lang", resolveLanguage(c.GetHeader("Accept-Language"), defaultLang))
		c.Next()
	}
}

// resolveLanguage handles headers like "es-MX,es;q=0.9,en;q=0.8". Quality
// values are ignored; order decides.
func resolveLanguage(header, fallback string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" || tag == "*" {
			continue
		}
		base := strings.ToLower(strings.SplitN(strings.ReplaceAll(tag, "_", "-"), "-", 2)[0])
		if i18n.IsSupported(base) {
			return base
		}
	}
	return fallback
}
