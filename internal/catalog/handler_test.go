package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/order-service/internal/domain"
)

type stubItems struct {
	items map[int64]domain.CatalogItem
	err   error
}

func (s *stubItems) ListAll(ctx context.Context) ([]domain.CatalogItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.CatalogItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	return out, nil
}

func (s *stubItems) FindItem(ctx context.Context, id int64) (*domain.CatalogItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w with id: %d", domain.ErrItemNotFound, id)
	}
	return &item, nil
}

func newTestRouter(items itemReader) http.Handler {
	handler := NewHandler(items, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Get("/api/items", handler.HandleList)
	r.Get("/api/items/{id}", handler.HandleGet)
	return r
}

func TestHandler_HandleGet(t *testing.T) {
	items := &stubItems{items: map[int64]domain.CatalogItem{
		1: {ID: 1, Name: "USB-C Cable 1m", Price: decimal.RequireFromString("9.99")},
	}}
	router := newTestRouter(items)

	t.Run("returns item", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var item domain.CatalogItem
		if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if item.Name != "USB-C Cable 1m" {
			t.Errorf("unexpected item name: %s", item.Name)
		}
		if !item.Price.Equal(decimal.RequireFromString("9.99")) {
			t.Errorf("unexpected price: %s", item.Price)
		}
	})

	t.Run("returns 404 for unknown item", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/99", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("returns 400 for malformed id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/abc", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleList(t *testing.T) {
	t.Run("returns 500 when lookup fails", func(t *testing.T) {
		router := newTestRouter(&stubItems{err: errors.New("connection refused")})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
	})

	t.Run("lists items", func(t *testing.T) {
		router := newTestRouter(&stubItems{items: map[int64]domain.CatalogItem{
			2: {ID: 2, Name: "Wireless Mouse", Price: decimal.RequireFromString("24.90")},
		}})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var items []domain.CatalogItem
		if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(items) != 1 {
			t.Errorf("expected 1 item, got %d", len(items))
		}
	})
}
