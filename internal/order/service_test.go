package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecommarket/marketplace/internal/catalog"
	"github.com/ecommarket/marketplace/internal/order"
	"github.com/ecommarket/marketplace/internal/store"
)

type mockOrderRepository struct {
	createFunc         func(ctx context.Context, o *order.Order) error
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listByBuyerFunc    func(ctx context.Context, buyerID uuid.UUID, status order.Status) ([]order.Order, error)
	listByProductsFunc func(ctx context.Context, productIDs []uuid.UUID, status order.Status) ([]order.Order, error)
	updateStatusFunc   func(ctx context.Context, upd order.StatusUpdate) error
	updatePaymentFunc  func(ctx context.Context, upd order.PaymentUpdate) error
}

func (m *mockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	return m.createFunc(ctx, o)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, status order.Status) ([]order.Order, error) {
	return m.listByBuyerFunc(ctx, buyerID, status)
}

func (m *mockOrderRepository) ListByProducts(ctx context.Context, productIDs []uuid.UUID, status order.Status) ([]order.Order, error) {
	return m.listByProductsFunc(ctx, productIDs, status)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, upd order.StatusUpdate) error {
	return m.updateStatusFunc(ctx, upd)
}

func (m *mockOrderRepository) UpdatePayment(ctx context.Context, upd order.PaymentUpdate) error {
	return m.updatePaymentFunc(ctx, upd)
}

type mockCatalog struct {
	getByIDFunc     func(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
	listByStoreFunc func(ctx context.Context, storeID uuid.UUID) ([]catalog.Product, error)
}

func (m *mockCatalog) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockCatalog) ListByStore(ctx context.Context, storeID uuid.UUID) ([]catalog.Product, error) {
	return m.listByStoreFunc(ctx, storeID)
}

type mockStores struct {
	getByOwnerFunc func(ctx context.Context, ownerID uuid.UUID) (*store.Store, error)
}

func (m *mockStores) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*store.Store, error) {
	return m.getByOwnerFunc(ctx, ownerID)
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id
}

func testAddress() order.ShippingAddress {
	return order.ShippingAddress{
		Street:  "1 Main St",
		City:    "Springfield",
		State:   "IL",
		ZipCode: "62704",
		Country: "US",
	}
}

func TestService_PlaceOrder_EmptyItems(t *testing.T) {
	created := false
	repo := &mockOrderRepository{
		createFunc: func(ctx context.Context, o *order.Order) error {
			created = true
			return nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.PlaceOrder(context.Background(), mustUUID(t), order.PlacementInput{
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})

	assert.ErrorIs(t, err, order.ErrEmptyOrder)
	assert.False(t, created, "no order may be written when the item list is empty")
}

func TestService_PlaceOrder_ProductNotFound(t *testing.T) {
	created := false
	repo := &mockOrderRepository{
		createFunc: func(ctx context.Context, o *order.Order) error {
			created = true
			return nil
		},
	}
	cat := &mockCatalog{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
			return nil, catalog.ErrProductNotFound
		},
	}
	svc := order.NewService(repo, cat, &mockStores{}, nil)

	_, err := svc.PlaceOrder(context.Background(), mustUUID(t), order.PlacementInput{
		Items:           []order.PlacementItem{{ProductID: mustUUID(t), Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})

	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	assert.False(t, created, "placement must abort with zero side effects on a missing product")
}

func TestService_PlaceOrder_InsufficientStock(t *testing.T) {
	productID := mustUUID(t)
	created := false
	repo := &mockOrderRepository{
		createFunc: func(ctx context.Context, o *order.Order) error {
			created = true
			return nil
		},
	}
	cat := &mockCatalog{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
			return &catalog.Product{ID: id, Price: 10, Stock: 1}, nil
		},
	}
	svc := order.NewService(repo, cat, &mockStores{}, nil)

	_, err := svc.PlaceOrder(context.Background(), mustUUID(t), order.PlacementInput{
		Items:           []order.PlacementItem{{ProductID: productID, Quantity: 3}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})

	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, productID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.False(t, created)
}

func TestService_PlaceOrder_Success(t *testing.T) {
	buyerID := mustUUID(t)
	productID := mustUUID(t)

	var persisted *order.Order
	repo := &mockOrderRepository{
		createFunc: func(ctx context.Context, o *order.Order) error {
			persisted = o
			return nil
		},
	}
	cat := &mockCatalog{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
			return &catalog.Product{ID: id, Price: 10, Stock: 5}, nil
		},
	}
	svc := order.NewService(repo, cat, &mockStores{}, nil)

	before := time.Now().UTC()
	placed, err := svc.PlaceOrder(context.Background(), buyerID, order.PlacementInput{
		Items:           []order.PlacementItem{{ProductID: productID, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})

	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, placed, persisted)

	assert.Equal(t, buyerID, placed.BuyerID)
	assert.Equal(t, order.StatusPending, placed.Status)
	assert.Equal(t, order.PaymentPending, placed.PaymentStatus)
	assert.Equal(t, 20.0, placed.TotalAmount)

	require.Len(t, placed.Items, 1)
	assert.Equal(t, 10.0, placed.Items[0].UnitPrice, "unit price must be snapshotted from the catalog")

	require.Len(t, placed.StatusHistory, 1)
	assert.Equal(t, order.StatusPending, placed.StatusHistory[0].Status)

	require.NotNil(t, placed.EstimatedDeliveryDate)
	assert.WithinDuration(t, before.Add(7*24*time.Hour), *placed.EstimatedDeliveryDate, time.Minute)
}

func TestService_PlaceOrder_TotalMatchesItems(t *testing.T) {
	cat := &mockCatalog{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
			// Deterministic per-product price derived from the id.
			price := 10 + float64(id.Bytes()[0]%5)*2.5
			return &catalog.Product{ID: id, Price: price, Stock: 100}, nil
		},
	}
	repo := &mockOrderRepository{
		createFunc: func(ctx context.Context, o *order.Order) error { return nil },
	}
	svc := order.NewService(repo, cat, &mockStores{}, nil)

	placed, err := svc.PlaceOrder(context.Background(), mustUUID(t), order.PlacementInput{
		Items: []order.PlacementItem{
			{ProductID: mustUUID(t), Quantity: 2},
			{ProductID: mustUUID(t), Quantity: 3},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	})

	require.NoError(t, err)
	assert.Equal(t, order.TotalOf(placed.Items), placed.TotalAmount)
}

// concurrentStockRepo simulates the repository's conditional decrement:
// Create fails with InsufficientStockError unless every item can be
// reserved atomically.
type concurrentStockRepo struct {
	mu     sync.Mutex
	stock  map[uuid.UUID]int
	orders []*order.Order
}

func (r *concurrentStockRepo) Create(ctx context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range o.Items {
		if r.stock[item.ProductID] < item.Quantity {
			return &order.InsufficientStockError{
				ProductID: item.ProductID,
				Available: r.stock[item.ProductID],
				Requested: item.Quantity,
			}
		}
	}
	for _, item := range o.Items {
		r.stock[item.ProductID] -= item.Quantity
	}
	r.orders = append(r.orders, o)
	return nil
}

func (r *concurrentStockRepo) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return nil, order.ErrOrderNotFound
}

func (r *concurrentStockRepo) ListByBuyer(ctx context.Context, buyerID uuid.UUID, status order.Status) ([]order.Order, error) {
	return nil, nil
}

func (r *concurrentStockRepo) ListByProducts(ctx context.Context, productIDs []uuid.UUID, status order.Status) ([]order.Order, error) {
	return nil, nil
}

func (r *concurrentStockRepo) UpdateStatus(ctx context.Context, upd order.StatusUpdate) error {
	return nil
}

func (r *concurrentStockRepo) UpdatePayment(ctx context.Context, upd order.PaymentUpdate) error {
	return nil
}

func TestService_PlaceOrder_ConcurrentLastUnit(t *testing.T) {
	productID := mustUUID(t)
	repo := &concurrentStockRepo{stock: map[uuid.UUID]int{productID: 1}}
	cat := &mockCatalog{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
			// Both callers see the last unit as available; only the
			// conditional decrement decides the winner.
			return &catalog.Product{ID: id, Price: 10, Stock: 1}, nil
		},
	}
	svc := order.NewService(repo, cat, &mockStores{}, nil)

	input := order.PlacementInput{
		Items:           []order.PlacementItem{{ProductID: productID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "card",
	}
	buyerA, buyerB := mustUUID(t), mustUUID(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.PlaceOrder(context.Background(), buyerA, input)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.PlaceOrder(context.Background(), buyerB, input)
	}()
	wg.Wait()

	successes, stockFailures := 0, 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var stockErr *order.InsufficientStockError
		if errors.As(err, &stockErr) {
			stockFailures++
		}
	}

	assert.Equal(t, 1, successes, "exactly one placement may win the last unit")
	assert.Equal(t, 1, stockFailures, "the loser must see an insufficient stock error")
	assert.Equal(t, 0, repo.stock[productID], "stock must end at zero, never negative")
	assert.Len(t, repo.orders, 1)
}

func TestService_TransitionStatus_Invalid(t *testing.T) {
	orderID := mustUUID(t)
	updated := false
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusPending}, nil
		},
		updateStatusFunc: func(ctx context.Context, upd order.StatusUpdate) error {
			updated = true
			return nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.TransitionStatus(context.Background(), orderID, order.StatusShipped, "", "")

	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, order.StatusPending, transitionErr.From)
	assert.Equal(t, order.StatusShipped, transitionErr.To)
	assert.False(t, updated, "a rejected transition must not touch the order")
}

func TestService_TransitionStatus_TerminalState(t *testing.T) {
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusCancelled}, nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.TransitionStatus(context.Background(), mustUUID(t), order.StatusConfirmed, "", "")

	var transitionErr *order.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}

func TestService_TransitionStatus_UnknownStatusValue(t *testing.T) {
	svc := order.NewService(&mockOrderRepository{}, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.TransitionStatus(context.Background(), mustUUID(t), order.Status("teleported"), "", "")

	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestService_TransitionStatus_Cancelled(t *testing.T) {
	orderID := mustUUID(t)
	var captured order.StatusUpdate
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusProcessing}, nil
		},
		updateStatusFunc: func(ctx context.Context, upd order.StatusUpdate) error {
			captured = upd
			return nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.TransitionStatus(context.Background(), orderID, order.StatusCancelled, "out of stock", "")

	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, captured.From)
	assert.Equal(t, order.StatusCancelled, captured.To)
	assert.Equal(t, "out of stock", captured.Note)
	assert.Equal(t, "out of stock", captured.CancellationReason)
	assert.Empty(t, captured.ReturnReason)
	assert.Nil(t, captured.DeliveredAt)
}

func TestService_TransitionStatus_Delivered(t *testing.T) {
	var captured order.StatusUpdate
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusOutForDelivery}, nil
		},
		updateStatusFunc: func(ctx context.Context, upd order.StatusUpdate) error {
			captured = upd
			return nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.TransitionStatus(context.Background(), mustUUID(t), order.StatusDelivered, "", "TRK-42")

	require.NoError(t, err)
	require.NotNil(t, captured.DeliveredAt, "reaching delivered must stamp the actual delivery date")
	assert.WithinDuration(t, time.Now().UTC(), *captured.DeliveredAt, time.Minute)
	assert.Equal(t, "TRK-42", captured.TrackingNumber)
}

func TestService_UpdatePaymentStatus_CouplesPendingToConfirmed(t *testing.T) {
	var captured order.PaymentUpdate
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusPending, PaymentStatus: order.PaymentPending}, nil
		},
		updatePaymentFunc: func(ctx context.Context, upd order.PaymentUpdate) error {
			captured = upd
			return nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.UpdatePaymentStatus(context.Background(), mustUUID(t), order.PaymentCompleted, "")

	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, captured.PaymentStatus)
	require.NotNil(t, captured.StatusChange, "completed payment on a pending order must auto-advance it")
	assert.Equal(t, order.StatusPending, captured.StatusChange.From)
	assert.Equal(t, order.StatusConfirmed, captured.StatusChange.To)
	assert.Equal(t, "Payment completed", captured.StatusChange.Note)
}

func TestService_UpdatePaymentStatus_NoCouplingPastPending(t *testing.T) {
	var captured order.PaymentUpdate
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusProcessing, PaymentStatus: order.PaymentProcessing}, nil
		},
		updatePaymentFunc: func(ctx context.Context, upd order.PaymentUpdate) error {
			captured = upd
			return nil
		},
	}
	svc := order.NewService(repo, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.UpdatePaymentStatus(context.Background(), mustUUID(t), order.PaymentCompleted, "")

	require.NoError(t, err)
	assert.Nil(t, captured.StatusChange)
}

func TestService_UpdatePaymentStatus_UnknownValue(t *testing.T) {
	svc := order.NewService(&mockOrderRepository{}, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.UpdatePaymentStatus(context.Background(), mustUUID(t), order.PaymentStatus("iou"), "")

	assert.ErrorIs(t, err, order.ErrInvalidPaymentStatus)
}

func TestService_OrdersByBuyer_InvalidStatusFilter(t *testing.T) {
	svc := order.NewService(&mockOrderRepository{}, &mockCatalog{}, &mockStores{}, nil)

	_, err := svc.OrdersByBuyer(context.Background(), mustUUID(t), order.Status("limbo"))

	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}
