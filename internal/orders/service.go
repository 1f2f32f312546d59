package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/order-service/internal/domain"
)

const profileFetchLimit = 8

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Order, error)
	ListByStatuses(ctx context.Context, statuses []domain.OrderStatus) ([]domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id int64) error
}

type IdentityResolver interface {
	ResolveOwner(ctx context.Context, credentialID int64) (int64, error)
	FetchProfile(ctx context.Context, ownerID int64) (*domain.Profile, error)
}

type Catalog interface {
	FindItem(ctx context.Context, id int64) (*domain.CatalogItem, error)
}

type EventPublisher interface {
	PublishAsync(ctx context.Context, key string, event any)
}

// UpdateInput carries a full replacement of an order's lines and an optional
// status change.
type UpdateInput struct {
	Status *string
	Lines  []domain.LineRequest
}

type Service struct {
	store     Store
	identity  IdentityResolver
	catalog   Catalog
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	created   metric.Int64Counter
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the lifecycle engine. publisher may be nil, in which case
// creation events are skipped.
func NewService(store Store, identity IdentityResolver, catalog Catalog, publisher EventPublisher, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		identity:  identity,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	created, err := otel.Meter("orders").Int64Counter("orders.created",
		metric.WithDescription("Orders persisted through create"),
	)
	if err != nil {
		logger.Warn("failed to register orders.created counter", "error", err)
	}
	s.created = created

	return s
}

func (s *Service) Create(ctx context.Context, credentialID int64, requested []domain.LineRequest) (*OrderView, error) {
	if err := validateLines(requested); err != nil {
		return nil, err
	}

	ownerID, err := s.identity.ResolveOwner(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	profile, err := s.identity.FetchProfile(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	lines, err := s.buildLines(ctx, requested)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		OwnerID:   ownerID,
		Status:    domain.OrderStatusPending,
		CreatedAt: s.now(),
		Lines:     lines,
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	if s.created != nil {
		s.created.Add(ctx, 1)
	}

	s.publishCreated(ctx, order)

	s.logger.Info("order created", "order_id", order.ID, "owner_id", order.OwnerID, "total", order.Total().String())
	return newOrderView(order, profile), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*OrderView, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return newOrderView(order, s.softProfile(ctx, order.OwnerID)), nil
}

func (s *Service) ListByIDs(ctx context.Context, ids []int64) ([]OrderView, error) {
	orders, err := s.store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, orders), nil
}

func (s *Service) ListByStatuses(ctx context.Context, raw []string) ([]OrderView, error) {
	statuses := make([]domain.OrderStatus, 0, len(raw))
	for _, r := range raw {
		status, err := domain.ParseOrderStatus(r)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}

	orders, err := s.store.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, orders), nil
}

// Update replaces the order's lines and optionally moves it to a new status.
// Every check that needs a network call runs before the row lock is taken;
// ownership and the transition are checked again under the lock.
func (s *Service) Update(ctx context.Context, id, credentialID int64, in UpdateInput) (*OrderView, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	callerID, err := s.identity.ResolveOwner(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if callerID != current.OwnerID {
		return nil, fmt.Errorf("%w: order %d belongs to another user", domain.ErrForbidden, id)
	}

	target := current.Status
	raw, statusRequested := requestedStatus(in.Status)
	if statusRequested {
		target, err = domain.ParseOrderStatus(raw)
		if err != nil {
			return nil, err
		}
		if target.IsPaymentManaged() {
			return nil, fmt.Errorf("%w: cannot set payment statuses manually", domain.ErrForbidden)
		}
	}

	if !current.Status.CanTransitionTo(target) {
		return nil, transitionError(current.Status, target)
	}

	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}

	lines, err := s.buildLines(ctx, in.Lines)
	if err != nil {
		return nil, err
	}

	var updated *domain.Order
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.store.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked.OwnerID != callerID {
			return fmt.Errorf("%w: order %d belongs to another user", domain.ErrForbidden, id)
		}

		next := locked.Status
		if statusRequested {
			next = target
		}
		if !locked.Status.CanTransitionTo(next) {
			return transitionError(locked.Status, next)
		}

		locked.Status = next
		locked.Lines = lines
		if err := s.store.Update(ctx, locked); err != nil {
			return err
		}

		updated = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order updated", "order_id", updated.ID, "status", updated.Status, "lines", len(updated.Lines))
	return newOrderView(updated, s.softProfile(ctx, updated.OwnerID)), nil
}

func (s *Service) Delete(ctx context.Context, id, credentialID int64) error {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	callerID, err := s.identity.ResolveOwner(ctx, credentialID)
	if err != nil {
		return err
	}
	if callerID != order.OwnerID {
		return fmt.Errorf("%w: order %d belongs to another user", domain.ErrForbidden, id)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("order deleted", "order_id", id)
	return nil
}

// requestedStatus treats a missing or blank status as no status change.
func requestedStatus(status *string) (string, bool) {
	if status == nil {
		return "", false
	}
	raw := strings.TrimSpace(*status)
	return raw, raw != ""
}

func transitionError(from, to domain.OrderStatus) error {
	return fmt.Errorf("%w: %w: %s -> %s", domain.ErrInvalidStatus, domain.ErrInvalidTransition, from, to)
}

func validateLines(lines []domain.LineRequest) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: order must contain at least one item", domain.ErrInvalidInput)
	}
	for i, line := range lines {
		if line.ItemID <= 0 {
			return fmt.Errorf("%w: items[%d].item_id must be positive", domain.ErrInvalidInput, i)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: items[%d].quantity must be at least 1", domain.ErrInvalidInput, i)
		}
	}
	return nil
}

// buildLines resolves every requested item in order and stops at the first miss.
func (s *Service) buildLines(ctx context.Context, requested []domain.LineRequest) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(requested))
	for _, req := range requested {
		item, err := s.catalog.FindItem(ctx, req.ItemID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, domain.OrderLine{
			ItemID:    item.ID,
			ItemName:  item.Name,
			UnitPrice: item.Price,
			Quantity:  req.Quantity,
		})
	}
	return lines, nil
}

func (s *Service) softProfile(ctx context.Context, ownerID int64) *domain.Profile {
	profile, err := s.identity.FetchProfile(ctx, ownerID)
	if err != nil {
		if errors.Is(err, domain.ErrOwnerNotFound) {
			s.logger.Info("owner profile not found", "owner_id", ownerID)
		} else {
			s.logger.Warn("owner profile lookup failed", "owner_id", ownerID, "error", err)
		}
		return nil
	}
	return profile
}

// decorate fetches each distinct owner's profile once, concurrently.
func (s *Service) decorate(ctx context.Context, orders []domain.Order) []OrderView {
	seen := make(map[int64]struct{})
	var ownerIDs []int64
	for _, o := range orders {
		if _, ok := seen[o.OwnerID]; ok {
			continue
		}
		seen[o.OwnerID] = struct{}{}
		ownerIDs = append(ownerIDs, o.OwnerID)
	}

	profiles := make(map[int64]*domain.Profile, len(ownerIDs))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(profileFetchLimit)
	for _, ownerID := range ownerIDs {
		g.Go(func() error {
			profile := s.softProfile(ctx, ownerID)
			mu.Lock()
			profiles[ownerID] = profile
			mu.Unlock()
			return nil
		})
	}
	// softProfile degrades instead of failing, so Wait only joins.
	_ = g.Wait()

	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, *newOrderView(&orders[i], profiles[orders[i].OwnerID]))
	}
	return views
}

func (s *Service) publishCreated(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}

	key := ""
	if order.ID != 0 {
		key = strconv.FormatInt(order.ID, 10)
	}

	s.publisher.PublishAsync(ctx, key, domain.OrderCreatedEvent{
		EventID:       uuid.NewString(),
		OrderID:       order.ID,
		UserID:        order.OwnerID,
		PaymentAmount: order.Total(),
	})
}
