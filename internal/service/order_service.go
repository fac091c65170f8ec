package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/models"
	"github.com/printmint/cardpress/internal/payments"
	"github.com/printmint/cardpress/internal/pricing"
)

type orderStore interface {
	Create(ctx context.Context, order *models.Order, opts []models.PrintOptions) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error
	List(ctx context.Context) ([]models.OrderDetail, error)
	GetDetail(ctx context.Context, id string) (*models.OrderDetail, error)
}

type checkoutProvider interface {
	CreateCheckoutSession(items []payments.LineItem) (*payments.CheckoutSession, error)
}

type OrderService struct {
	log      *slog.Logger
	table    *pricing.Table
	orders   orderStore
	checkout checkoutProvider
}

// OrderItem is one print request in a checkout submission.
type OrderItem struct {
	ImageMetadataID *int64
	ImageName       string
	ImageSrc        string
	Size            string
	Quantity        int
}

type CheckoutResult struct {
	OrderID     string `json:"orderId"`
	SessionID   string `json:"id"`
	RedirectURL string `json:"url"`
	TotalCents  int    `json:"totalCents"`
}

func NewOrderService(log *slog.Logger, table *pricing.Table, orders orderStore, checkout checkoutProvider) *OrderService {
	return &OrderService{
		log:      log,
		table:    table,
		orders:   orders,
		checkout: checkout,
	}
}

// CreateCheckout recomputes the order total from the tier table, rejects a
// client total that disagrees, creates the payment session and persists the
// pending order. The server-side recomputation is the anti-tampering
// invariant: the client-supplied total is never trusted.
func (s *OrderService) CreateCheckout(ctx context.Context, userID string, items []OrderItem, clientTotalCents int) (*CheckoutResult, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("invalid order items")
	}

	var total int
	lineItems := make([]payments.LineItem, 0, len(items))
	opts := make([]models.PrintOptions, 0, len(items))
	for _, item := range items {
		if item.ImageSrc == "" || item.Size == "" {
			return nil, apperr.Validation("invalid order item structure")
		}
		if item.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1")
		}
		unit, err := s.table.UnitPrice(item.Quantity)
		if err != nil {
			if errors.Is(err, pricing.ErrNoMatchingTier) {
				return nil, apperr.Validation(fmt.Sprintf("no pricing tier for quantity %d", item.Quantity))
			}
			return nil, err
		}
		total += unit * item.Quantity

		name := item.ImageName
		if name == "" {
			name = "Custom card"
		}
		lineItems = append(lineItems, payments.LineItem{
			Name:            fmt.Sprintf("Print of %s", name),
			ImageURL:        item.ImageSrc,
			UnitAmountCents: unit,
			Quantity:        item.Quantity,
		})
		opts = append(opts, models.PrintOptions{
			ImageMetadataID: item.ImageMetadataID,
			ImageName:       item.ImageName,
			ImageSrc:        item.ImageSrc,
			Size:            item.Size,
			Quantity:        item.Quantity,
			UnitPriceCents:  unit,
		})
	}

	if total != clientTotalCents {
		return nil, apperr.Validation("Total amount mismatch")
	}

	sess, err := s.checkout.CreateCheckoutSession(lineItems)
	if err != nil {
		return nil, apperr.UpstreamUnavailable(err)
	}

	order := &models.Order{
		ID:               uuid.NewString(),
		UserID:           userID,
		Status:           models.OrderPending,
		PaymentSessionID: sess.ID,
		TotalCents:       total,
	}
	if err := s.orders.Create(ctx, order, opts); err != nil {
		return nil, err
	}

	s.log.Info("checkout session created", "order", order.ID, "session", sess.ID, "total_cents", total)
	return &CheckoutResult{
		OrderID:     order.ID,
		SessionID:   sess.ID,
		RedirectURL: sess.URL,
		TotalCents:  total,
	}, nil
}

// MarkPaid transitions the order tied to a completed payment session to paid.
// Already-terminal orders are left untouched so webhook redelivery stays safe.
func (s *OrderService) MarkPaid(ctx context.Context, paymentSessionID string) error {
	order, err := s.orders.FindByPaymentSession(ctx, paymentSessionID)
	if err != nil {
		return err
	}
	if order == nil {
		return apperr.NotFound(fmt.Sprintf("no order for payment session %s", paymentSessionID))
	}
	if order.Status == models.OrderPaid || order.Status.Terminal() {
		return nil
	}
	return s.orders.UpdateStatus(ctx, order.ID, models.OrderPaid)
}

// UpdateStatus applies a status change with terminal-state locking: shipped
// and cancelled orders refuse any different status. All other transitions are
// permitted.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.OrderDetail, error) {
	if !next.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid status %q", next))
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("order not found")
	}
	if order.Status.Terminal() && next != order.Status {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot change status of %s orders", order.Status))
	}

	if err := s.orders.UpdateStatus(ctx, orderID, next); err != nil {
		return nil, err
	}
	return s.orders.GetDetail(ctx, orderID)
}

func (s *OrderService) List(ctx context.Context) ([]models.OrderDetail, error) {
	return s.orders.List(ctx)
}

func (s *OrderService) Get(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	detail, err := s.orders.GetDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, apperr.NotFound("order not found")
	}
	return detail, nil
}
