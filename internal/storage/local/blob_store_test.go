// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bestiary-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "target", "monsters")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
		// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
		require.NoError(t, os.Chmod(tempDir, 0o700))
	})
}

func TestPutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		path := "16762-aboleth.html"
		uri, err := store.PutObject(context.Background(), path, "text/html", strings.NewReader("<html>aboleth</html>"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "<html>aboleth</html>", string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		path := "16869-frog.html"
		_, err := store.PutObject(context.Background(), path, "text/html", strings.NewReader("old"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), path, "text/html", strings.NewReader("new"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, path))
		require.NoError(t, err)
		assert.Equal(t, "new", string(got))
	})

	t.Run("NestedPath", func(t *testing.T) {
		path := "monsters/b/c/16909-guard.html"
		uri, err := store.PutObject(context.Background(), path, "text/html", strings.NewReader("guard"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, path), uri)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/html", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.html", "text/html", strings.NewReader("data"))
		assert.ErrorContains(t, err, "path traversal")
	})
}

func TestReadBack(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "pages/1.html")
	require.NoError(t, err)
	assert.False(t, exists)

	uri, err := store.PutObject(ctx, "pages/1.html", "text/html", strings.NewReader("listing"))
	require.NoError(t, err)
	assert.Equal(t, uri, store.URI("pages/1.html"))

	exists, err = store.Exists(ctx, "pages/1.html")
	require.NoError(t, err)
	assert.True(t, exists)

	body, err := store.GetObject(ctx, "pages/1.html")
	require.NoError(t, err)
	assert.Equal(t, "listing", string(body))

	exists, err = store.Exists(ctx, "pages")
	require.NoError(t, err)
	assert.False(t, exists, "directories are not objects")

	_, err = store.GetObject(ctx, "missing.html")
	assert.Error(t, err)
	_, err = store.Exists(ctx, "../escape.html")
	assert.ErrorContains(t, err, "path traversal")
}
