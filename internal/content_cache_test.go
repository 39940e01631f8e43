package internal

import (
	"context"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestContentCache_MutationWindow(t *testing.T) {
	c := NewContentCache()
	feature := Payload{Kind: PayloadFeature, Feature: &Feature{Title: "a"}}

	_, replaced := c.Put("a", feature)
	assert.Equal(t, replaced, false)
	assert.Equal(t, c.Size(), 0)

	c.StartMutation()
	_, replaced = c.Put("a", feature)
	assert.Equal(t, replaced, false)

	updated := Payload{Kind: PayloadFeature, Feature: &Feature{Title: "a2"}}
	prev, replaced := c.Put("a", updated)
	assert.Equal(t, replaced, true)
	assert.Equal(t, prev.Feature.Title, "a")

	got, ok := c.Get("a")
	assert.Equal(t, ok, true)
	assert.Equal(t, got.Feature.Title, "a2")

	c.FinishMutation()
	_, ok = c.Get("a")
	assert.Equal(t, ok, false)

	st := c.Stats()
	assert.Equal(t, st.Lookups, int64(2))
	assert.Equal(t, st.Hits, int64(1))
	assert.Equal(t, st.Mutations, int64(1))
	assert.Equal(t, st.Size, 0)
}

func TestContentCache_StartMutationClears(t *testing.T) {
	c := NewContentCache()
	c.StartMutation()
	c.Put("a", Payload{Kind: PayloadToken, Token: &Token{NextPageToken: "n"}})

	// an overlapping start is logged and still clears
	c.StartMutation()
	assert.Equal(t, c.Size(), 0)
}

func TestFeedStore_GetPayloadsPrefersCache(t *testing.T) {
	ctx := context.Background()
	store := newTestFeedStore(t)
	commitFeatures(t, store, "stored")

	store.contentCache.StartMutation()
	store.contentCache.Put("cached", Payload{Kind: PayloadFeature, Feature: &Feature{Title: "cached"}})
	defer store.contentCache.FinishMutation()

	got, err := store.GetPayloads(ctx, []string{"cached", "missing", "stored"})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0].ContentID, "cached")
	assert.Equal(t, got[0].Payload.Feature.Title, "cached")
	assert.Equal(t, got[1].ContentID, "stored")
}
