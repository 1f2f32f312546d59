package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joao-fontenele/order-service/internal/domain"
)

// Repository resolves catalog items from the items table. It is read-only.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.CatalogItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price
		FROM items
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list items: %w", domain.ErrDependencyUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	items := []domain.CatalogItem{}
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// FindItem returns the item with id, domain.ErrItemNotFound when it does not
// exist, or domain.ErrDependencyUnavailable when the lookup itself failed.
func (r *Repository) FindItem(ctx context.Context, id int64) (*domain.CatalogItem, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	item := &domain.CatalogItem{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w with id: %d", domain.ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("%w: find item %d: %w", domain.ErrDependencyUnavailable, id, err)
	}

	return item, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
