package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printmint/cardpress/internal/apperr"
	"github.com/printmint/cardpress/internal/models"
	"github.com/printmint/cardpress/internal/payments"
	"github.com/printmint/cardpress/internal/pricing"
	"github.com/printmint/cardpress/pkg/logger"
)

type fakeOrderStore struct {
	orders        map[string]*models.Order
	opts          map[string][]models.PrintOptions
	statusUpdates []models.OrderStatus
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		orders: map[string]*models.Order{},
		opts:   map[string][]models.PrintOptions{},
	}
}

func (f *fakeOrderStore) Create(ctx context.Context, order *models.Order, opts []models.PrintOptions) error {
	cp := *order
	f.orders[order.ID] = &cp
	f.opts[order.ID] = opts
	return nil
}

func (f *fakeOrderStore) FindByID(ctx context.Context, id string) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) FindByPaymentSession(ctx context.Context, sessionID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.PaymentSessionID == sessionID {
			cp := *order
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderStore) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) error {
	f.orders[id].Status = status
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeOrderStore) List(ctx context.Context) ([]models.OrderDetail, error) {
	var out []models.OrderDetail
	for _, order := range f.orders {
		out = append(out, models.OrderDetail{Order: *order})
	}
	return out, nil
}

func (f *fakeOrderStore) GetDetail(ctx context.Context, id string) (*models.OrderDetail, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return &models.OrderDetail{Order: *order, PrintOptions: f.opts[id]}, nil
}

type fakeCheckout struct {
	session *payments.CheckoutSession
	err     error
	items   []payments.LineItem
	calls   int
}

func (f *fakeCheckout) CreateCheckoutSession(items []payments.LineItem) (*payments.CheckoutSession, error) {
	f.calls++
	f.items = items
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func newOrderFixture(t *testing.T) (*OrderService, *fakeOrderStore, *fakeCheckout) {
	t.Helper()
	table, err := pricing.NewTable(pricing.DefaultTiers(), pricing.Reject, 0)
	require.NoError(t, err)
	store := newFakeOrderStore()
	checkout := &fakeCheckout{session: &payments.CheckoutSession{
		ID:  "cs_test_123",
		URL: "https://checkout.stripe.com/pay/cs_test_123",
	}}
	return NewOrderService(logger.New(), table, store, checkout), store, checkout
}

func TestCreateCheckoutRecomputesTotal(t *testing.T) {
	svc, store, checkout := newOrderFixture(t)

	result, err := svc.CreateCheckout(context.Background(), "u1", []OrderItem{
		{ImageName: "Fire Dragon", ImageSrc: "https://cdn.example.com/a.png", Size: "standard", Quantity: 3},
	}, 1500)
	require.NoError(t, err)

	assert.Equal(t, "cs_test_123", result.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_test_123", result.RedirectURL)
	assert.Equal(t, 1500, result.TotalCents)

	order := store.orders[result.OrderID]
	require.NotNil(t, order)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, "cs_test_123", order.PaymentSessionID)
	assert.Equal(t, 1500, order.TotalCents)

	require.Len(t, checkout.items, 1)
	assert.Equal(t, 500, checkout.items[0].UnitAmountCents)
	assert.Equal(t, 3, checkout.items[0].Quantity)

	opts := store.opts[result.OrderID]
	require.Len(t, opts, 1)
	assert.Equal(t, 500, opts[0].UnitPriceCents)
}

func TestCreateCheckoutMixedQuantitiesUseTierPerItem(t *testing.T) {
	svc, _, checkout := newOrderFixture(t)

	// 3 at 500 each plus 10 at the discounted 400 rate.
	result, err := svc.CreateCheckout(context.Background(), "u1", []OrderItem{
		{ImageName: "A", ImageSrc: "https://cdn.example.com/a.png", Size: "standard", Quantity: 3},
		{ImageName: "B", ImageSrc: "https://cdn.example.com/b.png", Size: "large", Quantity: 10},
	}, 5500)
	require.NoError(t, err)
	assert.Equal(t, 5500, result.TotalCents)
	require.Len(t, checkout.items, 2)
	assert.Equal(t, 400, checkout.items[1].UnitAmountCents)
}

func TestCreateCheckoutRejectsTamperedTotal(t *testing.T) {
	svc, store, checkout := newOrderFixture(t)

	_, err := svc.CreateCheckout(context.Background(), "u1", []OrderItem{
		{ImageName: "Fire Dragon", ImageSrc: "https://cdn.example.com/a.png", Size: "standard", Quantity: 3},
	}, 100)
	require.Error(t, err)

	ae := apperr.From(err)
	assert.Equal(t, "validation_error", ae.Code)
	assert.Equal(t, "Total amount mismatch", ae.Message)
	// Nothing is created when the totals disagree.
	assert.Equal(t, 0, checkout.calls)
	assert.Empty(t, store.orders)
}

func TestCreateCheckoutValidation(t *testing.T) {
	svc, _, _ := newOrderFixture(t)

	tests := []struct {
		name  string
		items []OrderItem
		total int
	}{
		{"no items", nil, 0},
		{"missing image src", []OrderItem{{Size: "standard", Quantity: 1}}, 500},
		{"missing size", []OrderItem{{ImageSrc: "https://cdn.example.com/a.png", Quantity: 1}}, 500},
		{"zero quantity", []OrderItem{{ImageSrc: "https://cdn.example.com/a.png", Size: "standard", Quantity: 0}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateCheckout(context.Background(), "u1", tt.items, tt.total)
			require.Error(t, err)
			assert.Equal(t, "validation_error", apperr.From(err).Code)
		})
	}
}

func TestCreateCheckoutProviderFailure(t *testing.T) {
	svc, store, checkout := newOrderFixture(t)
	checkout.err = assert.AnError

	_, err := svc.CreateCheckout(context.Background(), "u1", []OrderItem{
		{ImageName: "A", ImageSrc: "https://cdn.example.com/a.png", Size: "standard", Quantity: 1},
	}, 500)
	require.Error(t, err)
	assert.Equal(t, "upstream_error", apperr.From(err).Code)
	assert.Empty(t, store.orders)
}

func TestMarkPaidTransitionsPendingOrder(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	store.orders["o1"] = &models.Order{ID: "o1", Status: models.OrderPending, PaymentSessionID: "cs_1"}

	require.NoError(t, svc.MarkPaid(context.Background(), "cs_1"))
	assert.Equal(t, models.OrderPaid, store.orders["o1"].Status)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	store.orders["o1"] = &models.Order{ID: "o1", Status: models.OrderPaid, PaymentSessionID: "cs_1"}

	require.NoError(t, svc.MarkPaid(context.Background(), "cs_1"))
	require.NoError(t, svc.MarkPaid(context.Background(), "cs_1"))
	assert.Empty(t, store.statusUpdates)
}

func TestMarkPaidLeavesTerminalOrdersAlone(t *testing.T) {
	svc, store, _ := newOrderFixture(t)
	store.orders["o1"] = &models.Order{ID: "o1", Status: models.OrderCancelled, PaymentSessionID: "cs_1"}

	require.NoError(t, svc.MarkPaid(context.Background(), "cs_1"))
	assert.Equal(t, models.OrderCancelled, store.orders["o1"].Status)
}

func TestMarkPaidUnknownSession(t *testing.T) {
	svc, _, _ := newOrderFixture(t)

	err := svc.MarkPaid(context.Background(), "cs_missing")
	require.Error(t, err)
	assert.Equal(t, "not_found", apperr.From(err).Code)
}

func TestUpdateStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current models.OrderStatus
		next    models.OrderStatus
		wantErr string
	}{
		{"pending to paid", models.OrderPending, models.OrderPaid, ""},
		{"paid to processing", models.OrderPaid, models.OrderProcessing, ""},
		{"processing to shipped", models.OrderProcessing, models.OrderShipped, ""},
		{"pending to cancelled", models.OrderPending, models.OrderCancelled, ""},
		{"processing back to pending", models.OrderProcessing, models.OrderPending, ""},
		{"shipped to processing", models.OrderShipped, models.OrderProcessing, "invalid_transition"},
		{"shipped to cancelled", models.OrderShipped, models.OrderCancelled, "invalid_transition"},
		{"cancelled to paid", models.OrderCancelled, models.OrderPaid, "invalid_transition"},
		{"shipped to shipped", models.OrderShipped, models.OrderShipped, ""},
		{"unknown status", models.OrderPending, models.OrderStatus("lost"), "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newOrderFixture(t)
			store.orders["o1"] = &models.Order{ID: "o1", Status: tt.current}

			detail, err := svc.UpdateStatus(context.Background(), "o1", tt.next)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, apperr.From(err).Code)
				assert.Equal(t, tt.current, store.orders["o1"].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, detail.Order.Status)
		})
	}
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc, _, _ := newOrderFixture(t)

	_, err := svc.UpdateStatus(context.Background(), "missing", models.OrderPaid)
	require.Error(t, err)
	assert.Equal(t, "not_found", apperr.From(err).Code)
}
