package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/order-service/internal/auth"
	"github.com/joao-fontenele/order-service/internal/domain"
)

func TestClient_ResolveOwner(t *testing.T) {
	t.Run("returns owner id for known credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/users/by-credentials-id/111", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":4,"name":"Rita","surname":"Sokolova","email":"margo@gmail.com"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		ownerID, err := client.ResolveOwner(context.Background(), 111)
		require.NoError(t, err)
		assert.Equal(t, int64(4), ownerID)
	})

	t.Run("maps 404 to owner not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		_, err := client.ResolveOwner(context.Background(), 777)
		require.ErrorIs(t, err, domain.ErrOwnerNotFound)
		assert.NotErrorIs(t, err, domain.ErrDependencyUnavailable)
	})

	t.Run("treats empty body id as owner not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		_, err := client.ResolveOwner(context.Background(), 5)
		require.ErrorIs(t, err, domain.ErrOwnerNotFound)
	})

	t.Run("maps server errors to dependency unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		_, err := client.ResolveOwner(context.Background(), 5)
		require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
		assert.NotErrorIs(t, err, domain.ErrOwnerNotFound)
	})

	t.Run("maps timeouts to dependency unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		httpClient := server.Client()
		httpClient.Timeout = 20 * time.Millisecond
		client := NewClient(server.URL, httpClient)

		_, err := client.ResolveOwner(context.Background(), 5)
		require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	})

	t.Run("forwards bearer token from context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":9}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		ctx := auth.WithToken(context.Background(), "access-token")
		ownerID, err := client.ResolveOwner(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(9), ownerID)
	})
}

func TestClient_FetchProfile(t *testing.T) {
	t.Run("decodes profile", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/users/4", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":4,"name":"Rita","surname":"Sokolova","birthDate":"1999-03-01","email":"margo@gmail.com"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		profile, err := client.FetchProfile(context.Background(), 4)
		require.NoError(t, err)
		assert.Equal(t, "Rita", profile.Name)
		assert.Equal(t, "Sokolova", profile.Surname)
		assert.Equal(t, "1999-03-01", profile.BirthDate)
	})

	t.Run("maps 404 to owner not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		profile, err := client.FetchProfile(context.Background(), 4)
		require.ErrorIs(t, err, domain.ErrOwnerNotFound)
		assert.Nil(t, profile)
	})

	t.Run("maps unauthorized to dependency unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		client := NewClient(server.URL, server.Client())
		_, err := client.FetchProfile(context.Background(), 4)
		require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	})
}
