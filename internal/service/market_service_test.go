package service

import (
	"context"
	"testing"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/pkg/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memoryMarketRepo 是集市持久层的内存替身。
type memoryMarketRepo struct {
	listings []model.Listing
	orders   []model.Order
	alerts   map[string]int64
}

func newMemoryMarketRepo() *memoryMarketRepo {
	return &memoryMarketRepo{alerts: make(map[string]int64)}
}

func (r *memoryMarketRepo) CreateListing(listing *model.Listing) error {
	listing.ID = uint(len(r.listings) + 1)
	r.listings = append(r.listings, *listing)
	return nil
}

func (r *memoryMarketRepo) ListListings() ([]model.Listing, error) {
	return r.listings, nil
}

func (r *memoryMarketRepo) FindListingsByIDs(ids []uint) ([]model.Listing, error) {
	var out []model.Listing
	for _, listing := range r.listings {
		for _, id := range ids {
			if listing.ID == id {
				out = append(out, listing)
			}
		}
	}
	return out, nil
}

func (r *memoryMarketRepo) FindListingByID(id uint) (*model.Listing, error) {
	for i := range r.listings {
		if r.listings[i].ID == id {
			return &r.listings[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryMarketRepo) CreateOrder(order *model.Order) error {
	order.ID = uint(len(r.orders) + 1)
	r.orders = append(r.orders, *order)
	return nil
}

func (r *memoryMarketRepo) FindOrderByOrderID(orderID string) (*model.Order, error) {
	for i := range r.orders {
		if r.orders[i].OrderID == orderID {
			copied := r.orders[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryMarketRepo) ListOrdersByBuyer(buyerName string) ([]model.Order, error) {
	var out []model.Order
	for _, order := range r.orders {
		if order.BuyerName == buyerName {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memoryMarketRepo) ListOrdersByFarmer(farmerName string) ([]model.Order, error) {
	var out []model.Order
	for _, order := range r.orders {
		if order.FarmerName == farmerName {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *memoryMarketRepo) UpdateOrder(order *model.Order) error {
	for i := range r.orders {
		if r.orders[i].OrderID == order.OrderID {
			r.orders[i] = *order
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryMarketRepo) IncrPendingAlert(ctx context.Context, farmerName string) error {
	r.alerts[farmerName]++
	return nil
}

func (r *memoryMarketRepo) GetPendingAlert(ctx context.Context, farmerName string) (int64, error) {
	return r.alerts[farmerName], nil
}

func (r *memoryMarketRepo) ClearPendingAlert(ctx context.Context, farmerName string) error {
	delete(r.alerts, farmerName)
	return nil
}

func seedListing(repo *memoryMarketRepo) model.Listing {
	listing := model.Listing{
		FarmerName: "suresh",
		Crop:       "Wheat",
		QuantityKg: 100,
		PricePerKg: decimal.NewFromInt(25),
		Location:   "Rampur",
	}
	_ = repo.CreateListing(&listing)
	return listing
}

func buyer() *model.User {
	return &model.User{Username: "ramesh", Email: "ramesh@example.com"}
}

func TestPlaceOrderCreatesPendingOrderAndEmitsEvent(t *testing.T) {
	repo := newMemoryMarketRepo()
	listing := seedListing(repo)

	var produced []events.OrderEvent
	svc := NewMarketService(repo, func(e events.OrderEvent) error {
		produced = append(produced, e)
		return nil
	})

	order, err := svc.PlaceOrder(context.Background(), buyer(), listing.ID, model.DeliveryOptionHome)
	require.NoError(t, err)

	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, "Wheat", order.Crop)
	assert.Equal(t, "suresh", order.FarmerName)
	assert.Equal(t, "ramesh", order.BuyerName)

	require.Len(t, produced, 1)
	assert.Equal(t, order.OrderID, produced[0].OrderID)
	assert.Equal(t, "suresh", produced[0].FarmerName)
}

func TestPlaceOrderRejectsSelfPurchase(t *testing.T) {
	repo := newMemoryMarketRepo()
	listing := seedListing(repo)
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })

	seller := &model.User{Username: "suresh"}
	_, err := svc.PlaceOrder(context.Background(), seller, listing.ID, model.DeliveryOptionPickup)
	assert.Error(t, err)
	assert.Empty(t, repo.orders)
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	repo := newMemoryMarketRepo()
	listing := seedListing(repo)
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })

	_, err := svc.PlaceOrder(context.Background(), buyer(), listing.ID, "Teleport")
	assert.Error(t, err)

	_, err = svc.PlaceOrder(context.Background(), buyer(), 999, model.DeliveryOptionPickup)
	assert.Error(t, err)
}

func TestPostListingValidation(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })

	farmer := &model.User{Username: "suresh"}
	_, err := svc.PostListing(context.Background(), farmer, PostListingInput{
		Crop: "   ", QuantityKg: 10, PricePerKg: decimal.NewFromInt(5),
	})
	assert.Error(t, err)

	_, err = svc.PostListing(context.Background(), farmer, PostListingInput{
		Crop: "Rice", QuantityKg: 0, PricePerKg: decimal.NewFromInt(5),
	})
	assert.Error(t, err)

	assert.Empty(t, repo.listings)
}

func placePendingOrder(t *testing.T, svc MarketService, repo *memoryMarketRepo, delivery string) *model.Order {
	t.Helper()
	listing := seedListing(repo)
	order, err := svc.PlaceOrder(context.Background(), buyer(), listing.ID, delivery)
	require.NoError(t, err)
	return order
}

func TestAcceptOrderPickup(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })
	order := placePendingOrder(t, svc, repo, model.DeliveryOptionPickup)

	accepted, err := svc.AcceptOrder("suresh", order.OrderID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusAcceptedPickup, accepted.Status)
}

func TestAcceptOrderWithCourier(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })
	order := placePendingOrder(t, svc, repo, model.DeliveryOptionHome)

	accepted, err := svc.AcceptOrder("suresh", order.OrderID, &CourierInput{
		CourierCompany:   "Delhivery",
		TrackingNumber:   "DL123456",
		ExpectedDelivery: "2026-09-05",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusAcceptedCourier, accepted.Status)
	assert.Equal(t, "Delhivery", accepted.CourierCompany)
	assert.Equal(t, "DL123456", accepted.TrackingNumber)
}

func TestAcceptOrderHomeDeliveryWithoutCourier(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })
	order := placePendingOrder(t, svc, repo, model.DeliveryOptionHome)

	accepted, err := svc.AcceptOrder("suresh", order.OrderID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusAcceptedDelivery, accepted.Status)
}

func TestRejectOrder(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })
	order := placePendingOrder(t, svc, repo, model.DeliveryOptionPickup)

	rejected, err := svc.RejectOrder("suresh", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRejected, rejected.Status)

	// 终态订单不可再次操作
	_, err = svc.AcceptOrder("suresh", order.OrderID, nil)
	assert.ErrorIs(t, err, ErrOrderNotActionable)
}

func TestOrderActionsRequireOwnership(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })
	order := placePendingOrder(t, svc, repo, model.DeliveryOptionPickup)

	_, err := svc.AcceptOrder("someone-else", order.OrderID, nil)
	assert.ErrorIs(t, err, ErrOrderNotOwned)
	_, err = svc.RejectOrder("someone-else", order.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotOwned)
}

func TestPendingAlertsReadAndClear(t *testing.T) {
	repo := newMemoryMarketRepo()
	svc := NewMarketService(repo, func(events.OrderEvent) error { return nil })

	// 消费者收到两个订单事件
	require.NoError(t, svc.Process(context.Background(), events.OrderEvent{FarmerName: "suresh"}))
	require.NoError(t, svc.Process(context.Background(), events.OrderEvent{FarmerName: "suresh"}))

	count, err := svc.PendingAlerts(context.Background(), "suresh")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// 读取后清零
	count, err = svc.PendingAlerts(context.Background(), "suresh")
	require.NoError(t, err)
	assert.Zero(t, count)
}
