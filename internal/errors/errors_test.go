package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := New(fmt.Errorf("boom")).Build()

	require.NotNil(t, err)
	assert.Equal(t, ComponentUnknown, err.Component, "expected unknown component default")
	assert.Equal(t, CategoryGeneric, err.Category, "expected generic category default")
	assert.False(t, err.Timestamp.IsZero(), "expected timestamp to be set")
}

func TestBuilderMetadata(t *testing.T) {
	err := Newf("image too dark: brightness %d", 12).
		Component("imagecheck").
		Category(CategoryTooDark).
		Context("brightness", 12).
		Build()

	assert.Equal(t, "imagecheck", err.Component)
	assert.Equal(t, CategoryTooDark, err.Category)
	assert.Equal(t, 12, err.GetContext()["brightness"])
	assert.Contains(t, err.Error(), "too dark")
}

func TestCategoryMatching(t *testing.T) {
	inner := fmt.Errorf("status 429")
	err := New(inner).Category(CategoryProviderError).Build()

	t.Run("unwrap preserves original", func(t *testing.T) {
		assert.ErrorIs(t, err, inner)
	})

	t.Run("Is matches by category", func(t *testing.T) {
		other := New(fmt.Errorf("different text")).Category(CategoryProviderError).Build()
		assert.True(t, err.Is(other))
	})

	t.Run("CategoryOf walks the chain", func(t *testing.T) {
		wrapped := fmt.Errorf("outer: %w", err)
		assert.Equal(t, CategoryProviderError, CategoryOf(wrapped))
		assert.True(t, HasCategory(wrapped, CategoryProviderError))
		assert.False(t, HasCategory(wrapped, CategoryTooDark))
	})
}

func TestContextCopyIsolation(t *testing.T) {
	err := New(fmt.Errorf("x")).Context("k", "v").Build()
	got := err.GetContext()
	got["k"] = "mutated"

	assert.Equal(t, "v", err.GetContext()["k"], "context copy must not leak mutations")
}
