// internal/config/database.go
package config

import (
	"fmt"
	"time"
)

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// Addr returns host:port, or "" when Redis is not configured.
func (r *RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

func (r *RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.ZipCacheTTL) * time.Minute
}

func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func (d *DocumentAIConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}
