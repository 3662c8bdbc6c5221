package joboffer

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"cvlm/internal/ports"
)

// CachedFetcher 按 URL 缓存成功抓取的职位正文，失败结果不缓存。
type CachedFetcher struct {
	next  ports.JobOfferFetcher
	cache *cache.Cache
}

var _ ports.JobOfferFetcher = (*CachedFetcher)(nil)

func NewCachedFetcher(next ports.JobOfferFetcher, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedFetcher{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if v, ok := c.cache.Get(url); ok {
		return v.(string), nil
	}
	text, err := c.next.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	c.cache.Set(url, text, cache.DefaultExpiration)
	return text, nil
}
