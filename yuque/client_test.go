package yuque

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func testScope() Scope {
	return Scope{
		Space:      "acme",
		Token:      "secret-token",
		GroupLogin: "eng",
		BookSlug:   "platform",
	}
}

func TestClientGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v2/repos/eng/platform/docs", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("limit"))
		require.Equal(t, "secret-token", r.Header.Get("X-Auth-Token"))
		require.Equal(t, "yuque-mcp", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":[{"id":1,"title":"One"}]}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, nil)
	query := url.Values{}
	query.Set("limit", "100")
	data, err := c.Get(context.Background(), testScope(), "docs", query)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":1,"title":"One"}]`, string(data))
}

func TestClientGetAbsentData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, nil)
	data, err := c.Get(context.Background(), testScope(), "toc", nil)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "Design Notes", payload["title"])
		require.Equal(t, "markdown", payload["format"])
		_, _ = w.Write([]byte(`{"data":{"id":42,"slug":"design-notes"}}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, nil)
	data, err := c.Post(context.Background(), testScope(), "docs", map[string]any{
		"title":  "Design Notes",
		"format": "markdown",
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":42,"slug":"design-notes"}`, string(data))
}

func TestClientRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, nil)
	_, err := c.Get(context.Background(), testScope(), "docs", nil)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	require.Equal(t, http.StatusUnauthorized, remoteErr.StatusCode)
	require.Contains(t, remoteErr.Body, "invalid token")
	require.Contains(t, err.Error(), "401")
}

func TestClientDefaultBaseURL(t *testing.T) {
	c := NewClient(nil, "", nil)
	requestURL := c.repoURL(testScope(), "toc")
	require.Equal(t, "https://acme.yuque.com/api/v2/repos/eng/platform/toc", requestURL)
}

func TestScopeMissing(t *testing.T) {
	require.Empty(t, testScope().Missing())

	scope := Scope{Space: "acme"}
	missing := scope.Missing()
	require.Equal(t, []string{"token", "group_login", "book_slug"}, missing)
}
