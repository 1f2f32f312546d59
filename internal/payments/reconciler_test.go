package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/order-service/internal/domain"
)

// lockingStore serializes transactions the way a row lock would for a single order.
type lockingStore struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	orders  map[int64]domain.Order
	saves   int
	saveErr error
}

func newLockingStore(orders ...domain.Order) *lockingStore {
	s := &lockingStore{orders: make(map[int64]domain.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *lockingStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

func (s *lockingStore) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w with id: %d", domain.ErrOrderNotFound, id)
	}
	return &order, nil
}

func (s *lockingStore) SavePaymentOutcome(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.orders[order.ID] = *order
	return nil
}

func (s *lockingStore) get(id int64) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func newTestReconciler(store Store) *Reconciler {
	return NewReconciler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func ref(s string) *string { return &s }

func successEvent(orderID int64, paymentID string) domain.PaymentEvent {
	return domain.PaymentEvent{EventID: "evt-" + paymentID, OrderID: orderID, PaymentID: ref(paymentID), Status: domain.PaymentOutcomeSuccess}
}

func TestReconciler_Apply(t *testing.T) {
	t.Run("success marks order paid", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 1, Status: domain.OrderStatusPending})
		r := newTestReconciler(store)

		outcome, err := r.Apply(context.Background(), successEvent(1, "pay-1"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)

		order := store.get(1)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)
		require.NotNil(t, order.PaymentID)
		assert.Equal(t, "pay-1", *order.PaymentID)
	})

	t.Run("applying the same event twice equals applying once", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 1, Status: domain.OrderStatusPending})
		r := newTestReconciler(store)
		event := successEvent(1, "pay-1")

		_, err := r.Apply(context.Background(), event)
		require.NoError(t, err)
		once := store.get(1)

		outcome, err := r.Apply(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		assert.Equal(t, once, store.get(1))
		assert.Equal(t, 1, store.saves)
	})

	t.Run("failure sets reference so retries are idempotent", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 2, Status: domain.OrderStatusPending})
		r := newTestReconciler(store)
		event := domain.PaymentEvent{EventID: "e", OrderID: 2, PaymentID: ref("pay-x"), Status: domain.PaymentOutcomeFailed}

		outcome, err := r.Apply(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Equal(t, domain.OrderStatusPaymentFailed, store.get(2).Status)

		outcome, err = r.Apply(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
		assert.Equal(t, 1, store.saves)
	})

	t.Run("later success with new reference keeps original payment", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 3, Status: domain.OrderStatusPaid, PaymentID: ref("pay-a")})
		r := newTestReconciler(store)

		outcome, err := r.Apply(context.Background(), successEvent(3, "pay-b"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)

		order := store.get(3)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)
		assert.Equal(t, "pay-a", *order.PaymentID)
	})

	t.Run("success after failed attempt is applied", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 4, Status: domain.OrderStatusPaymentFailed, PaymentID: ref("pay-x")})
		r := newTestReconciler(store)

		outcome, err := r.Apply(context.Background(), successEvent(4, "pay-y"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Equal(t, domain.OrderStatusPaid, store.get(4).Status)
	})

	t.Run("null reference success on pending order", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 5, Status: domain.OrderStatusPending})
		r := newTestReconciler(store)

		outcome, err := r.Apply(context.Background(), domain.PaymentEvent{OrderID: 5, Status: domain.PaymentOutcomeSuccess})
		require.NoError(t, err)
		assert.Equal(t, OutcomeApplied, outcome)
		assert.Nil(t, store.get(5).PaymentID)
	})

	t.Run("terminal orders are left alone", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 6, Status: domain.OrderStatusCancelled})
		r := newTestReconciler(store)

		outcome, err := r.Apply(context.Background(), successEvent(6, "pay-late"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeTerminal, outcome)
		assert.Equal(t, domain.OrderStatusCancelled, store.get(6).Status)
		assert.Zero(t, store.saves)
	})

	t.Run("stale event for deleted order is dropped", func(t *testing.T) {
		store := newLockingStore()
		r := newTestReconciler(store)

		outcome, err := r.Apply(context.Background(), successEvent(99, "pay-1"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknownOrder, outcome)
		assert.Empty(t, store.orders)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 7, Status: domain.OrderStatusPending})
		store.saveErr = errors.New("connection refused")
		r := newTestReconciler(store)

		_, err := r.Apply(context.Background(), successEvent(7, "pay-1"))
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestReconciler_ConcurrentDuplicates(t *testing.T) {
	store := newLockingStore(domain.Order{ID: 1, Status: domain.OrderStatusPending})
	r := newTestReconciler(store)
	event := successEvent(1, "pay-1")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 16)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := r.Apply(context.Background(), event)
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, o := range outcomes {
		if o == OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, store.saves)
}

func TestReconciler_Handle(t *testing.T) {
	t.Run("applies decoded event", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 1, Status: domain.OrderStatusPending})
		r := newTestReconciler(store)

		err := r.Handle(context.Background(), []byte(`{"eventId":"e1","orderId":1,"paymentId":"pay-1","status":"SUCCESS"}`))
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPaid, store.get(1).Status)
	})

	t.Run("malformed payloads are acknowledged", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 1, Status: domain.OrderStatusPending})
		r := newTestReconciler(store)

		for _, payload := range []string{
			`not json`,
			`{"orderId":0,"status":"SUCCESS"}`,
			`{"orderId":1,"status":"REFUNDED"}`,
		} {
			assert.NoError(t, r.Handle(context.Background(), []byte(payload)), payload)
		}
		assert.Zero(t, store.saves)
	})

	t.Run("store failure blocks acknowledgement", func(t *testing.T) {
		store := newLockingStore(domain.Order{ID: 1, Status: domain.OrderStatusPending})
		store.saveErr = errors.New("deadlock detected")
		r := newTestReconciler(store)

		err := r.Handle(context.Background(), []byte(`{"eventId":"e1","orderId":1,"paymentId":"pay-1","status":"FAILED"}`))
		require.Error(t, err)
	})
}
