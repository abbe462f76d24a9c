package translate

import (
	"context"
	"fmt"

	"github.com/couchcryptid/arvig-etl/internal/checkpoint"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// CacheHeader is the column layout of the persisted translation cache.
var CacheHeader = []string{"de", "en"}

// CachedTranslator memoizes translations in memory and in an append-only
// checkpoint so each German text is sent to the API at most once.
type CachedTranslator struct {
	inner domain.Translator
	mem   *gocache.Cache
	store *checkpoint.Store
}

func NewCachedTranslator(inner domain.Translator, store *checkpoint.Store) *CachedTranslator {
	return &CachedTranslator{
		inner: inner,
		mem:   gocache.New(gocache.NoExpiration, 0),
		store: store,
	}
}

func (c *CachedTranslator) Translate(ctx context.Context, text string) (string, error) {
	if v, ok := c.mem.Get(text); ok {
		return v.(string), nil
	}
	if c.store != nil {
		if row, ok := c.store.Get(text); ok && row[1] != "" {
			c.mem.Set(text, row[1], gocache.NoExpiration)
			return row[1], nil
		}
	}

	out, err := c.inner.Translate(ctx, text)
	if err != nil {
		return "", err
	}
	c.mem.Set(text, out, gocache.NoExpiration)
	if c.store != nil {
		if err := c.store.Append([]string{text, out}); err != nil {
			return out, fmt.Errorf("persist translation: %w", err)
		}
	}
	return out, nil
}
