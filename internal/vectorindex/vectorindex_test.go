package vectorindex

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("too big")
	oversized := NewUpsertError(KindOversized, base)
	wrapped := fmt.Errorf("batch 3: %w", oversized)

	assert.Equal(t, KindOversized, KindOf(wrapped))
	assert.True(t, IsOversized(wrapped))
	assert.ErrorIs(t, wrapped, base)

	assert.Equal(t, KindTransient, KindOf(NewUpsertError(KindTransient, base)))
	assert.Equal(t, KindPermanent, KindOf(base))
	assert.False(t, IsOversized(nil))
	assert.Contains(t, oversized.Error(), "oversized")
}

func TestPayloadSize(t *testing.T) {
	entries := []Entry{
		{ID: "abc", Content: "hello", Metadata: map[string]any{"k": "v"}},
		{ID: "d", Content: ""},
	}
	// 3+5+len(`{"k":"v"}`) + 1+0+len(`null`)
	assert.Equal(t, 3+5+9+1+4, PayloadSize(entries))
}

func TestCloneMetadata(t *testing.T) {
	src := map[string]any{"a": 1}
	out := CloneMetadata(src, map[string]any{"text": "x"})
	out["a"] = 2
	assert.Equal(t, 1, src["a"])
	assert.Equal(t, "x", out["text"])
}
