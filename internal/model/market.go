// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing 对应于数据库中的 'market_listings' 表，是农户挂出的待售作物。
type Listing struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	FarmerName string          `gorm:"type:varchar(64);index;not null" json:"farmerName"`
	Crop       string          `gorm:"type:varchar(100);not null" json:"crop"`
	QuantityKg int             `gorm:"not null" json:"quantityKg"`
	PricePerKg decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"pricePerKg"`
	Location   string          `gorm:"type:varchar(255)" json:"location"`
	Phone      string          `gorm:"type:varchar(32)" json:"phone"`
	Email      string          `gorm:"type:varchar(255)" json:"email"`
	// PhotoObject 是 MinIO 中的对象名，未上传图片时为空。
	PhotoObject string    `gorm:"type:varchar(255)" json:"-"`
	PhotoURL    string    `gorm:"-" json:"photoUrl,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Listing) TableName() string {
	return "market_listings"
}

// 订单状态。接受/拒绝后即为终态，不可再次操作。
const (
	OrderStatusPending          = "Pending"
	OrderStatusAcceptedPickup   = "Accepted (Pickup)"
	OrderStatusAcceptedCourier  = "Accepted (Courier)"
	OrderStatusAcceptedDelivery = "Accepted (Home Delivery)"
	OrderStatusRejected         = "Rejected"
)

// 订单的配送方式。
const (
	DeliveryOptionPickup = "Pickup"
	DeliveryOptionHome   = "Home Delivery"
)

// Order 对应于数据库中的 'market_orders' 表。
type Order struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	OrderID    string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"orderId"`
	Crop       string          `gorm:"type:varchar(100);not null" json:"crop"`
	QuantityKg int             `gorm:"not null" json:"quantityKg"`
	PricePerKg decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"pricePerKg"`
	BuyerName  string          `gorm:"type:varchar(64);index;not null" json:"buyerName"`
	BuyerEmail string          `gorm:"type:varchar(255)" json:"buyerEmail"`
	FarmerName string          `gorm:"type:varchar(64);index;not null" json:"farmerName"`
	Status     string          `gorm:"type:varchar(32);not null;default:Pending" json:"status"`
	// 配送相关字段，仅快递方式填写。
	DeliveryOption   string    `gorm:"type:varchar(32);not null" json:"deliveryOption"`
	CourierCompany   string    `gorm:"type:varchar(100)" json:"courierCompany,omitempty"`
	TrackingNumber   string    `gorm:"type:varchar(100)" json:"trackingNumber,omitempty"`
	ExpectedDelivery string    `gorm:"type:varchar(16)" json:"expectedDelivery,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Order) TableName() string {
	return "market_orders"
}

// EsListing 是写入 Elasticsearch 的集市条目文档。
type EsListing struct {
	ListingID  uint   `json:"listing_id"`
	FarmerName string `json:"farmer_name"`
	Crop       string `json:"crop"`
	Location   string `json:"location"`
	PricePerKg string `json:"price_per_kg"`
	QuantityKg int    `json:"quantity_kg"`
}
