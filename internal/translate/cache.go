package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache memoizes translations keyed by (source text, source language,
// target language) so recurring lines inside a video cost one upstream
// call.
type Cache struct {
	entries *gocache.Cache
}

// NewCache constructs a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{entries: gocache.New(ttl, 10*time.Minute)}
}

func cacheKey(text, sourceLang, targetLang string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text)) + "\x00" +
		strings.ToLower(sourceLang) + "\x00" + strings.ToLower(targetLang)))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached translation, if present.
func (c *Cache) Get(text, sourceLang, targetLang string) (string, bool) {
	value, ok := c.entries.Get(cacheKey(text, sourceLang, targetLang))
	if !ok {
		return "", false
	}
	translated, ok := value.(string)
	return translated, ok
}

// Put stores a translation with the default expiry.
func (c *Cache) Put(text, sourceLang, targetLang, translated string) {
	c.entries.SetDefault(cacheKey(text, sourceLang, targetLang), translated)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}
