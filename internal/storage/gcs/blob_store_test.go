package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/bestiary-crawler/internal/storage/gcs"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	_, err := gcs.New(nil, gcs.Config{Bucket: "bestiary"})
	assert.ErrorContains(t, err, "client is required")

	client := newTestClient(t, http.NotFoundHandler())
	_, err = gcs.New(client, gcs.Config{})
	assert.ErrorContains(t, err, "bucket name is required")
}

func TestObjectName(t *testing.T) {
	client := newTestClient(t, http.NotFoundHandler())

	store, err := gcs.New(client, gcs.Config{Bucket: "bestiary", Prefix: "/raw/"})
	require.NoError(t, err)
	assert.Equal(t, "raw/monsters/16762-aboleth.html", store.ObjectName("monsters/16762-aboleth.html"))

	bare, err := gcs.New(client, gcs.Config{Bucket: "bestiary"})
	require.NoError(t, err)
	assert.Equal(t, "16762-aboleth.html", bare.ObjectName("16762-aboleth.html"))
}

func TestPutObject(t *testing.T) {
	const object = "raw/16762-aboleth.html"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/bestiary/o")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "<html>aboleth</html>")
		assert.Contains(t, string(body), "text/html")
		assert.Contains(t, string(body), object)
		fmt.Fprintln(w, `{"name": "`+object+`", "bucket": "bestiary"}`)
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "bestiary", Prefix: "raw"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "16762-aboleth.html", "text/html", strings.NewReader("<html>aboleth</html>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://bestiary/"+object, uri)
	assert.NoError(t, store.Close())
}

func TestPutObjectErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "bestiary"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/html", strings.NewReader("x"))
	assert.ErrorContains(t, err, "path is required")

	_, err = store.PutObject(context.Background(), "16762-aboleth.html", "text/html", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestReadBack(t *testing.T) {
	const object = "raw/pages/1.html"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/b/bestiary/o/"):
			// JSON API object metadata.
			if !strings.HasSuffix(r.URL.Path, object) {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintln(w, `{"name": "`+object+`", "bucket": "bestiary", "size": "7"}`)
		case strings.HasSuffix(r.URL.Path, "/bestiary/"+object):
			// XML API media download.
			_, _ = io.WriteString(w, "listing")
		default:
			http.NotFound(w, r)
		}
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "bestiary", Prefix: "raw"})
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "pages/1.html")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "pages/2.html")
	require.NoError(t, err)
	assert.False(t, exists)

	body, err := store.GetObject(ctx, "pages/1.html")
	require.NoError(t, err)
	assert.Equal(t, "listing", string(body))

	assert.Equal(t, "gs://bestiary/"+object, store.URI("pages/1.html"))
}
