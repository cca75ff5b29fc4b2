package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/pipeline"
)

const sampleUsersJSON = `[
	{"id":1,"name":"Leanne Graham","username":"Bret","email":"Sincere@april.biz",
	 "address":{"street":"Kulas Light","city":"Gwenborough","zipcode":"92998-3874"},
	 "phone":"1-770-736-8031","website":"hildegard.org",
	 "company":{"name":"Romaguera-Crona","catchPhrase":"Multi-layered client-server neural-net"}},
	{"id":2,"name":"Ervin Howell","username":"Antonette","email":"Shanna@melissa.tv"}
]`

func newTestFetcher(url string) *Fetcher {
	return NewFetcher(config.FetchConfig{URL: url, Timeout: 5 * time.Second})
}

func TestFetchUsersDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleUsersJSON))
	}))
	defer server.Close()

	users, err := newTestFetcher(server.URL).FetchUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Bret", users[0].Username)
	require.NotNil(t, users[0].Address)
	assert.Equal(t, "Gwenborough", users[0].Address.City)
	assert.Nil(t, users[1].Address)
}

func TestFetchUsersServerErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestFetcher(server.URL).FetchUsers(context.Background())
	require.Error(t, err)
	assert.True(t, pipeline.IsTransportError(err), "5xx responses are retriable")
	assert.Contains(t, err.Error(), "status 500")
}

func TestFetchUsersUnreachableProviderIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on

	_, err := newTestFetcher(server.URL).FetchUsers(context.Background())
	require.Error(t, err)
	assert.True(t, pipeline.IsTransportError(err))
}

func TestFetchUsersMalformedBodyIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer server.Close()

	_, err := newTestFetcher(server.URL).FetchUsers(context.Background())
	require.Error(t, err)
	var ve *pipeline.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.False(t, pipeline.IsTransportError(err))
}
