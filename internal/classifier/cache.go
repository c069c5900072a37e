package classifier

import (
	"image"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Veraticus/nsfw-sweep/internal/imaging"
)

// scoreCache stores flagged confidences keyed by perceptual fingerprint.
type scoreCache struct {
	items *cache.Cache
}

func newScoreCache(ttl time.Duration) *scoreCache {
	cleanup := ttl
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &scoreCache{items: cache.New(ttl, cleanup)}
}

func (c *scoreCache) get(key string) (float64, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return 0, false
	}
	conf, ok := v.(float64)
	return conf, ok
}

func (c *scoreCache) set(key string, conf float64) {
	c.items.SetDefault(key, conf)
}

func (c *scoreCache) size() int {
	return c.items.ItemCount()
}

func (c *scoreCache) flush() {
	c.items.Flush()
}

func cacheKey(img image.Image) (string, error) {
	return imaging.Fingerprint(img)
}
