// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"

	"amazing-kissan-go/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// MarketRepository 定义了集市条目与订单的持久化操作。
type MarketRepository interface {
	CreateListing(listing *model.Listing) error
	ListListings() ([]model.Listing, error)
	FindListingsByIDs(ids []uint) ([]model.Listing, error)
	FindListingByID(id uint) (*model.Listing, error)

	CreateOrder(order *model.Order) error
	FindOrderByOrderID(orderID string) (*model.Order, error)
	ListOrdersByBuyer(buyerName string) ([]model.Order, error)
	ListOrdersByFarmer(farmerName string) ([]model.Order, error)
	UpdateOrder(order *model.Order) error

	// 待处理订单提醒计数，由 Kafka 消费者累加，卖家读取后清零。
	IncrPendingAlert(ctx context.Context, farmerName string) error
	GetPendingAlert(ctx context.Context, farmerName string) (int64, error)
	ClearPendingAlert(ctx context.Context, farmerName string) error
}

type marketRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewMarketRepository 创建一个新的 MarketRepository 实例。
func NewMarketRepository(db *gorm.DB, redisClient *redis.Client) MarketRepository {
	return &marketRepository{db: db, redisClient: redisClient}
}

// CreateListing 写入一条集市条目。
func (r *marketRepository) CreateListing(listing *model.Listing) error {
	return r.db.Create(listing).Error
}

// ListListings 按发布时间倒序列出全部在售作物。
func (r *marketRepository) ListListings() ([]model.Listing, error) {
	var listings []model.Listing
	err := r.db.Order("id DESC").Find(&listings).Error
	return listings, err
}

// FindListingsByIDs 按 ID 集合取回条目（搜索命中后回表）。
func (r *marketRepository) FindListingsByIDs(ids []uint) ([]model.Listing, error) {
	if len(ids) == 0 {
		return []model.Listing{}, nil
	}
	var listings []model.Listing
	err := r.db.Where("id IN ?", ids).Find(&listings).Error
	return listings, err
}

// FindListingByID 查找单条集市条目。
func (r *marketRepository) FindListingByID(id uint) (*model.Listing, error) {
	var listing model.Listing
	err := r.db.First(&listing, id).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// CreateOrder 写入一笔新订单。
func (r *marketRepository) CreateOrder(order *model.Order) error {
	return r.db.Create(order).Error
}

// FindOrderByOrderID 按业务订单号查找订单。
func (r *marketRepository) FindOrderByOrderID(orderID string) (*model.Order, error) {
	var order model.Order
	err := r.db.Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByBuyer 列出买家视角的全部订单。
func (r *marketRepository) ListOrdersByBuyer(buyerName string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.Where("buyer_name = ?", buyerName).Order("id DESC").Find(&orders).Error
	return orders, err
}

// ListOrdersByFarmer 列出卖家视角的全部订单。
func (r *marketRepository) ListOrdersByFarmer(farmerName string) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.Where("farmer_name = ?", farmerName).Order("id DESC").Find(&orders).Error
	return orders, err
}

// UpdateOrder 保存订单的状态与配送信息变更。
func (r *marketRepository) UpdateOrder(order *model.Order) error {
	return r.db.Save(order).Error
}

func pendingAlertKey(farmerName string) string {
	return fmt.Sprintf("market:pending_alerts:%s", farmerName)
}

// IncrPendingAlert 给卖家的待处理订单提醒计数加一。
func (r *marketRepository) IncrPendingAlert(ctx context.Context, farmerName string) error {
	return r.redisClient.Incr(ctx, pendingAlertKey(farmerName)).Err()
}

// GetPendingAlert 读取卖家当前的提醒计数，键不存在时为 0。
func (r *marketRepository) GetPendingAlert(ctx context.Context, farmerName string) (int64, error) {
	count, err := r.redisClient.Get(ctx, pendingAlertKey(farmerName)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get pending alert count: %w", err)
	}
	return count, nil
}

// ClearPendingAlert 卖家查看提醒后清零计数。
func (r *marketRepository) ClearPendingAlert(ctx context.Context, farmerName string) error {
	return r.redisClient.Del(ctx, pendingAlertKey(farmerName)).Err()
}
