package llm

import (
	"context"
	"encoding/hex"

	"github.com/raine/telegram-garment-bot/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"
)

// CachedDescriber wraps a Describer with a description cache.
// Empty replies are never cached.
type CachedDescriber struct {
	inner Describer
	store storage.DescriptionStore
}

// NewCachedDescriber creates a cached describer.
func NewCachedDescriber(inner Describer, store storage.DescriptionStore) *CachedDescriber {
	return &CachedDescriber{inner: inner, store: store}
}

// hashImage keys the cache on the describer name and the image bytes.
func hashImage(describer string, data []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(describer))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Name implements Describer.
func (c *CachedDescriber) Name() string {
	return c.inner.Name()
}

// Describe implements Describer with caching.
func (c *CachedDescriber) Describe(ctx context.Context, jpegData []byte) (*Description, error) {
	hash := hashImage(c.inner.Name(), jpegData)

	if c.store != nil {
		cached, err := c.store.GetDescription(hash)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check description cache")
		} else if cached != nil {
			log.Debug().Str("hash", hash[:16]).Msg("description cache hit")
			return &Description{Text: cached.Text}, nil
		}
	}

	desc, err := c.inner.Describe(ctx, jpegData)
	if err != nil {
		return nil, err
	}

	if c.store != nil && desc != nil && desc.Text != "" {
		entry := &storage.DescriptionEntry{Text: desc.Text, Describer: c.inner.Name()}
		if err := c.store.SetDescription(hash, entry); err != nil {
			log.Warn().Err(err).Msg("failed to cache description")
		} else {
			log.Debug().Str("hash", hash[:16]).Msg("cached description")
		}
	}

	return desc, nil
}
