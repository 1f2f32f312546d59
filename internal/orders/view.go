package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/order-service/internal/domain"
)

// OrderView is the caller-facing shape of an order. User is omitted when the
// owner's profile could not be loaded.
type OrderView struct {
	ID           int64              `json:"id"`
	UserID       int64              `json:"user_id"`
	Status       domain.OrderStatus `json:"status"`
	CreationDate time.Time          `json:"creation_date"`
	PaymentID    *string            `json:"payment_id"`
	Items        []domain.OrderLine `json:"items"`
	Total        decimal.Decimal    `json:"total"`
	User         *domain.Profile    `json:"user,omitempty"`
}

func newOrderView(order *domain.Order, profile *domain.Profile) *OrderView {
	items := order.Lines
	if items == nil {
		items = []domain.OrderLine{}
	}

	return &OrderView{
		ID:           order.ID,
		UserID:       order.OwnerID,
		Status:       order.Status,
		CreationDate: order.CreatedAt,
		PaymentID:    order.PaymentID,
		Items:        items,
		Total:        order.Total(),
		User:         profile,
	}
}
