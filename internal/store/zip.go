package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/greenleaf/compliance-engine/internal/apierr"
	"github.com/greenleaf/compliance-engine/internal/models"
)

// ZipResolver maps a 5-digit ZIP to its geographic record.
type ZipResolver interface {
	ResolveZip(ctx context.Context, zip string) (*models.ZipCode, error)
}

type ZipStore struct {
	db *gorm.DB
}

func NewZipStore(db *gorm.DB) *ZipStore {
	return &ZipStore{db: db}
}

func (s *ZipStore) ResolveZip(ctx context.Context, zip string) (*models.ZipCode, error) {
	var row models.ZipCode
	if err := s.db.WithContext(ctx).First(&row, "zip = ?", zip).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.ErrZipNotFound
		}
		return nil, fmt.Errorf("failed to resolve zip: %w", err)
	}
	return &row, nil
}

// ZipCacheObserver receives hit, miss and error counts.
type ZipCacheObserver interface {
	IncZipCache(result string)
}

// CachedZipResolver keeps resolved ZIPs in Redis. Reference data changes
// rarely, so only found records are cached. Redis failures fall through to
// the underlying resolver.
type CachedZipResolver struct {
	next     ZipResolver
	rdb      *redis.Client
	ttl      time.Duration
	timeout  time.Duration
	observer ZipCacheObserver
}

func NewCachedZipResolver(next ZipResolver, rdb *redis.Client, ttl time.Duration, observer ZipCacheObserver) *CachedZipResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedZipResolver{
		next:     next,
		rdb:      rdb,
		ttl:      ttl,
		timeout:  250 * time.Millisecond,
		observer: observer,
	}
}

func zipCacheKey(zip string) string {
	return "compliance:zip:" + zip
}

func (c *CachedZipResolver) ResolveZip(ctx context.Context, zip string) (*models.ZipCode, error) {
	if c.rdb == nil {
		return c.next.ResolveZip(ctx, zip)
	}

	if cached, ok := c.get(ctx, zip); ok {
		return cached, nil
	}

	row, err := c.next.ResolveZip(ctx, zip)
	if err != nil {
		return nil, err
	}
	c.set(ctx, row)
	return row, nil
}

func (c *CachedZipResolver) get(ctx context.Context, zip string) (*models.ZipCode, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, zipCacheKey(zip)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		c.observe("miss")
		return nil, false
	case err != nil:
		c.observe("error")
		logrus.WithError(err).WithField("zip", zip).Warn("zip cache read failed")
		return nil, false
	}

	var row models.ZipCode
	if err := json.Unmarshal(raw, &row); err != nil {
		c.observe("error")
		return nil, false
	}
	c.observe("hit")
	return &row, true
}

func (c *CachedZipResolver) set(ctx context.Context, row *models.ZipCode) {
	raw, err := json.Marshal(row)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.rdb.Set(ctx, zipCacheKey(row.Zip), raw, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("zip", row.Zip).Warn("zip cache write failed")
	}
}

func (c *CachedZipResolver) observe(result string) {
	if c.observer != nil {
		c.observer.IncZipCache(result)
	}
}
