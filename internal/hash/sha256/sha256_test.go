package sha256

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIdentifiesPageContent(t *testing.T) {
	t.Parallel()

	h := New()
	page := []byte(`<div class="mon-stat-block__name">Aboleth</div>`)

	first, err := h.Hash(page)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	again, err := h.Hash(page)
	require.NoError(t, err)
	assert.Equal(t, first, again, "an unchanged page keeps its hash")

	edited, err := h.Hash([]byte(`<div class="mon-stat-block__name">Aboleth Elder</div>`))
	require.NoError(t, err)
	assert.NotEqual(t, first, edited)
}

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash(nil)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
