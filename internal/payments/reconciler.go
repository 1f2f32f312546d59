package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/order-service/internal/domain"
)

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUnknownOrder Outcome = "unknown_order"
	OutcomeTerminal     Outcome = "terminal"
	OutcomeMalformed    Outcome = "malformed"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	SavePaymentOutcome(ctx context.Context, order *domain.Order) error
}

// Reconciler folds payment outcomes into order state. Delivery is
// at-least-once, so every event is checked against the locked order row
// before it is applied. Events for orders already in a terminal status are
// dropped, not applied.
type Reconciler struct {
	store     Store
	logger    *slog.Logger
	processed metric.Int64Counter
}

func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	processed, err := otel.Meter("payments").Int64Counter("payments.events.processed",
		metric.WithDescription("Payment events consumed, by result"),
	)
	if err != nil {
		logger.Warn("failed to register payments.events.processed counter", "error", err)
	}

	return &Reconciler{
		store:     store,
		logger:    logger,
		processed: processed,
	}
}

// Handle decodes a raw payment message and applies it. Undecodable payloads
// are logged and acknowledged; store failures are returned so the message is
// not committed.
func (r *Reconciler) Handle(ctx context.Context, payload []byte) error {
	var event domain.PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logger.Error("dropping malformed payment event", "error", err, "payload", string(payload))
		r.record(ctx, OutcomeMalformed)
		return nil
	}

	if err := validate(event); err != nil {
		r.logger.Error("dropping malformed payment event", "error", err, "event_id", event.EventID)
		r.record(ctx, OutcomeMalformed)
		return nil
	}

	_, err := r.Apply(ctx, event)
	return err
}

// Apply runs the idempotency checks and the write under one row lock.
func (r *Reconciler) Apply(ctx context.Context, event domain.PaymentEvent) (Outcome, error) {
	var outcome Outcome

	err := r.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := r.store.GetByIDForUpdate(ctx, event.OrderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				outcome = OutcomeUnknownOrder
				return nil
			}
			return err
		}

		outcome = decide(order, event)
		if outcome != OutcomeApplied {
			return nil
		}

		order.PaymentID = event.PaymentID
		if event.Status == domain.PaymentOutcomeSuccess {
			order.Status = domain.OrderStatusPaid
		} else {
			order.Status = domain.OrderStatusPaymentFailed
		}

		return r.store.SavePaymentOutcome(ctx, order)
	})
	if err != nil {
		r.logger.Error("failed to apply payment event", "error", err, "order_id", event.OrderID, "event_id", event.EventID)
		return "", fmt.Errorf("apply payment event %s: %w", event.EventID, err)
	}

	r.record(ctx, outcome)

	switch outcome {
	case OutcomeApplied:
		r.logger.Info("payment event applied", "order_id", event.OrderID, "status", event.Status, "event_id", event.EventID)
	case OutcomeUnknownOrder:
		r.logger.Warn("payment event for unknown order dropped", "order_id", event.OrderID, "event_id", event.EventID)
	default:
		r.logger.Info("payment event dropped", "order_id", event.OrderID, "reason", outcome, "event_id", event.EventID)
	}

	return outcome, nil
}

func decide(order *domain.Order, event domain.PaymentEvent) Outcome {
	if event.PaymentID != nil && order.PaymentID != nil && *event.PaymentID == *order.PaymentID {
		return OutcomeDuplicate
	}
	if order.Status == domain.OrderStatusPaid && event.Status == domain.PaymentOutcomeSuccess {
		return OutcomeDuplicate
	}
	if order.Status.IsTerminal() {
		return OutcomeTerminal
	}
	return OutcomeApplied
}

func validate(event domain.PaymentEvent) error {
	if event.OrderID <= 0 {
		return fmt.Errorf("%w: orderId must be positive", domain.ErrInvalidInput)
	}
	switch event.Status {
	case domain.PaymentOutcomeSuccess, domain.PaymentOutcomeFailed:
		return nil
	default:
		return fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidInput, event.Status)
	}
}

func (r *Reconciler) record(ctx context.Context, outcome Outcome) {
	if r.processed == nil {
		return
	}
	r.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(outcome))))
}
