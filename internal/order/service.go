package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ecommarket/marketplace/internal/catalog"
	"github.com/ecommarket/marketplace/internal/events"
	"github.com/ecommarket/marketplace/internal/store"
)

const estimatedDeliveryWindow = 7 * 24 * time.Hour

// CatalogReader is the slice of the catalog this service consumes:
// product lookups for placement and per-store product sets for the
// seller view. Stock mutation happens inside the order repository's
// placement transaction, never here.
type CatalogReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]catalog.Product, error)
}

type StoreReader interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*store.Store, error)
}

type PlacementItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type PlacementInput struct {
	Items           []PlacementItem
	ShippingAddress ShippingAddress
	PaymentMethod   string
}

type SellerOrdersResult struct {
	Orders    []SellerOrder
	Analytics Analytics
}

type Service interface {
	PlaceOrder(ctx context.Context, buyerID uuid.UUID, input PlacementInput) (*Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	OrdersByBuyer(ctx context.Context, buyerID uuid.UUID, status Status) ([]Order, error)
	TransitionStatus(ctx context.Context, orderID uuid.UUID, to Status, note, trackingNumber string) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, paymentStatus PaymentStatus, note string) (*Order, error)
	SellerOrders(ctx context.Context, sellerUserID uuid.UUID, status Status) (*SellerOrdersResult, error)
}

type service struct {
	orders    Repository
	products  CatalogReader
	stores    StoreReader
	publisher events.Publisher // nil disables event publishing
}

func NewService(orders Repository, products CatalogReader, stores StoreReader, publisher events.Publisher) Service {
	return &service{
		orders:    orders,
		products:  products,
		stores:    stores,
		publisher: publisher,
	}
}

// PlaceOrder validates every requested item against the catalog, snapshots
// prices, computes the total server-side and persists the order together
// with the stock decrements. Any failure leaves no order record and no
// stock mutation.
func (s *service) PlaceOrder(ctx context.Context, buyerID uuid.UUID, input PlacementInput) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, errors.New("service: product id in order item cannot be nil")
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("service: order item quantity for product %s must be at least one", item.ProductID)
		}
	}

	// Independent lookups, so issue them concurrently. The stock check
	// here is a fast pre-check; the repository's conditional decrement is
	// the authoritative guard against overselling.
	items := make([]Item, len(input.Items))
	g, gctx := errgroup.WithContext(ctx)
	for i, requested := range input.Items {
		g.Go(func() error {
			product, err := s.products.GetByID(gctx, requested.ProductID)
			if err != nil {
				if errors.Is(err, catalog.ErrProductNotFound) {
					return fmt.Errorf("product %s: %w", requested.ProductID, catalog.ErrProductNotFound)
				}
				return fmt.Errorf("service: failed to look up product %s: %w", requested.ProductID, err)
			}
			if product.Stock < requested.Quantity {
				return &InsufficientStockError{
					ProductID: product.ID,
					Available: product.Stock,
					Requested: requested.Quantity,
				}
			}
			items[i] = Item{
				ProductID: product.ID,
				Quantity:  requested.Quantity,
				UnitPrice: product.Price,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order ID: %w", err)
	}

	now := time.Now().UTC()
	estimated := now.Add(estimatedDeliveryWindow)

	o := &Order{
		ID:                    orderID,
		BuyerID:               buyerID,
		Items:                 items,
		TotalAmount:           TotalOf(items),
		Status:                StatusPending,
		StatusHistory:         []StatusEntry{{Status: StatusPending, Timestamp: now}},
		PaymentStatus:         PaymentPending,
		PaymentMethod:         input.PaymentMethod,
		ShippingAddress:       input.ShippingAddress,
		EstimatedDeliveryDate: &estimated,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		log.Warn().Err(err).Stringer("buyer_id", buyerID).Msg("service: order placement failed")
		return nil, err
	}

	log.Info().Stringer("order_id", o.ID).Stringer("buyer_id", buyerID).Float64("total", o.TotalAmount).Msg("service: order placed")
	s.publishEvent(events.RoutingOrderCreated, o)

	return o, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

func (s *service) OrdersByBuyer(ctx context.Context, buyerID uuid.UUID, status Status) ([]Order, error) {
	if status != "" && !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	orders, err := s.orders.ListByBuyer(ctx, buyerID, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch buyer orders: %w", err)
	}
	return orders, nil
}

// TransitionStatus applies one fulfillment transition. Legality is
// validated against the lifecycle graph before any write; invalid
// requests leave the order untouched.
func (s *service) TransitionStatus(ctx context.Context, orderID uuid.UUID, to Status, note, trackingNumber string) (*Order, error) {
	if !ValidStatus(to) {
		return nil, ErrInvalidStatus
	}

	current, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(current.Status, to) {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", to).
			Msg("service: invalid status transition attempt")
		return nil, &InvalidTransitionError{From: current.Status, To: to}
	}

	now := time.Now().UTC()
	upd := StatusUpdate{
		OrderID:        orderID,
		From:           current.Status,
		To:             to,
		Note:           note,
		TrackingNumber: trackingNumber,
		Timestamp:      now,
	}
	switch to {
	case StatusDelivered:
		upd.DeliveredAt = &now
	case StatusCancelled:
		upd.CancellationReason = note
	case StatusReturned:
		upd.ReturnReason = note
	}

	if err := s.orders.UpdateStatus(ctx, upd); err != nil {
		return nil, err
	}

	updated, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", current.Status).Stringer("new_status", to).Msg("service: order status updated")
	s.publishEvent(events.RoutingOrderStatusChanged, updated)

	return updated, nil
}

// UpdatePaymentStatus records a payment-state change. A completed payment
// on a still-pending order auto-advances fulfillment to confirmed; that
// is the only coupling between the two state machines.
func (s *service) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, paymentStatus PaymentStatus, note string) (*Order, error) {
	if !ValidPaymentStatus(paymentStatus) {
		return nil, ErrInvalidPaymentStatus
	}

	current, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	upd := PaymentUpdate{
		OrderID:       orderID,
		PaymentStatus: paymentStatus,
		Timestamp:     time.Now().UTC(),
	}
	if paymentStatus == PaymentCompleted && current.Status == StatusPending {
		upd.StatusChange = &StatusUpdate{
			OrderID: orderID,
			From:    StatusPending,
			To:      StatusConfirmed,
			Note:    "Payment completed",
		}
	}

	if err := s.orders.UpdatePayment(ctx, upd); err != nil {
		return nil, err
	}

	updated, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log.Info().Stringer("order_id", orderID).Stringer("payment_status", paymentStatus).Msg("service: payment status updated")
	s.publishEvent(events.RoutingOrderPaymentUpdated, updated)

	return updated, nil
}

// SellerOrders resolves the caller's store, collects every order touching
// its products and reduces each one to the store-scoped item subset with
// its subtotal, newest first, plus aggregate analytics.
func (s *service) SellerOrders(ctx context.Context, sellerUserID uuid.UUID, status Status) (*SellerOrdersResult, error) {
	if status != "" && !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	st, err := s.stores.GetByOwner(ctx, sellerUserID)
	if err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			return nil, store.ErrStoreNotFound
		}
		return nil, fmt.Errorf("service: failed to resolve seller store: %w", err)
	}

	products, err := s.products.ListByStore(ctx, st.ID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list store products: %w", err)
	}

	productIDs := make([]uuid.UUID, 0, len(products))
	stock := make(map[uuid.UUID]int, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ID)
		stock[p.ID] = p.Stock
	}

	orders, err := s.orders.ListByProducts(ctx, productIDs, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch store orders: %w", err)
	}

	sellerOrders := FilterForStore(orders, stock)
	analytics := BuildAnalytics(sellerOrders, stock, time.Now())

	return &SellerOrdersResult{Orders: sellerOrders, Analytics: analytics}, nil
}

// FilterForStore reduces orders to the line items owned by the store,
// keyed by membership in ownedProducts. Orders whose filtered item list
// comes out empty are dropped: the repository predicate guarantees at
// least one match on healthy data, so an empty result means a corrupted
// record and showing a zero-item order to a seller helps nobody.
func FilterForStore(orders []Order, ownedProducts map[uuid.UUID]int) []SellerOrder {
	result := make([]SellerOrder, 0, len(orders))
	for _, o := range orders {
		filtered := make([]Item, 0, len(o.Items))
		for _, item := range o.Items {
			if _, owned := ownedProducts[item.ProductID]; owned {
				filtered = append(filtered, item)
			}
		}
		if len(filtered) == 0 {
			continue
		}
		result = append(result, SellerOrder{
			Order:      o,
			Items:      filtered,
			StoreTotal: TotalOf(filtered),
		})
	}
	return result
}

// publishEvent is best-effort and asynchronous; a broker outage never
// fails the request that triggered the event.
func (s *service) publishEvent(routingKey string, o *Order) {
	if s.publisher == nil {
		return
	}

	evt := events.OrderEvent{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		TotalAmount:   o.TotalAmount,
		OccurredAt:    time.Now().UTC(),
	}

	go func() {
		if err := s.publisher.Publish(context.Background(), routingKey, evt); err != nil {
			log.Error().Err(err).Str("routing_key", routingKey).Stringer("order_id", o.ID).Msg("service: failed to publish order event")
		}
	}()
}
