package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusProcessing    OrderStatus = "PROCESSING"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusFailed        OrderStatus = "FAILED"
)

var knownStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:       {},
	OrderStatusPaid:          {},
	OrderStatusPaymentFailed: {},
	OrderStatusProcessing:    {},
	OrderStatusShipped:       {},
	OrderStatusDelivered:     {},
	OrderStatusCancelled:     {},
	OrderStatusFailed:        {},
}

// manualTransitions lists the targets a caller may move an order to through
// update. Payment statuses are reachable only through the reconciler.
var manualTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:       {OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:          {OrderStatusProcessing, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaymentFailed: {OrderStatusCancelled, OrderStatusFailed},
	OrderStatusProcessing:    {OrderStatusShipped, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusShipped:       {OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed},
}

// ParseOrderStatus converts caller input into a known status. Matching is
// case-insensitive; anything outside the known set yields ErrInvalidStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownStatuses[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// IsPaymentManaged reports whether only the payment reconciler may assign s.
func (s OrderStatus) IsPaymentManaged() bool {
	return s == OrderStatusPaid || s == OrderStatusPaymentFailed
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a caller-driven update may move an order
// from s to next. Keeping the current status is allowed until s is terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range manualTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderLine is a priced snapshot of a catalog item taken when the line was built.
type OrderLine struct {
	ItemID    int64           `json:"item_id"`
	ItemName  string          `json:"item_name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID        int64       `json:"id"`
	OwnerID   int64       `json:"user_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"creation_date"`
	PaymentID *string     `json:"payment_id"`
	Lines     []OrderLine `json:"items"`
}

// Total sums unit price times quantity over every line.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// LineRequest is a caller-supplied reference to a catalog item.
type LineRequest struct {
	ItemID   int64 `json:"item_id"`
	Quantity int   `json:"quantity"`
}
