// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/repository"
	"amazing-kissan-go/pkg/es"
	"amazing-kissan-go/pkg/events"
	"amazing-kissan-go/pkg/log"
	"amazing-kissan-go/pkg/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 图片下载链接的有效期。
const photoURLExpiry = time.Hour

// ErrOrderNotActionable 表示订单已处于终态，不能再接受或拒绝。
var ErrOrderNotActionable = errors.New("order already handled")

// ErrOrderNotOwned 表示操作者不是该订单的卖家。
var ErrOrderNotOwned = errors.New("order does not belong to this farmer")

// PostListingInput 是发布作物时的输入。图片为可选项。
type PostListingInput struct {
	Crop       string
	QuantityKg int
	PricePerKg decimal.Decimal

	Photo            io.Reader
	PhotoSize        int64
	PhotoContentType string
}

// CourierInput 是快递配送的补充信息。
type CourierInput struct {
	CourierCompany   string
	TrackingNumber   string
	ExpectedDelivery string
}

// MarketService 定义了作物集市的业务操作。
type MarketService interface {
	PostListing(ctx context.Context, farmer *model.User, input PostListingInput) (*model.Listing, error)
	ListMarket(ctx context.Context) ([]model.Listing, error)
	// SearchListings 按关键词检索集市条目，检索服务不可用时退化为空结果。
	SearchListings(ctx context.Context, query string) []model.Listing

	PlaceOrder(ctx context.Context, buyer *model.User, listingID uint, deliveryOption string) (*model.Order, error)
	MyOrders(buyerName string) ([]model.Order, error)
	MySales(farmerName string) ([]model.Order, error)
	// PendingAlerts 返回卖家的待处理订单提醒数并清零。
	PendingAlerts(ctx context.Context, farmerName string) (int64, error)

	AcceptOrder(farmerName, orderID string, courier *CourierInput) (*model.Order, error)
	RejectOrder(farmerName, orderID string) (*model.Order, error)

	// Process 实现 kafka.OrderProcessor，由后台消费者调用。
	Process(ctx context.Context, event events.OrderEvent) error
}

type marketService struct {
	marketRepo   repository.MarketRepository
	produceOrder func(events.OrderEvent) error
}

// NewMarketService 创建一个新的 MarketService 实例。
// produceOrder 是订单事件的发送函数，生产环境传入 kafka.ProduceOrderEvent。
func NewMarketService(marketRepo repository.MarketRepository, produceOrder func(events.OrderEvent) error) MarketService {
	return &marketService{
		marketRepo:   marketRepo,
		produceOrder: produceOrder,
	}
}

// PostListing 发布一条待售作物：可选图片上传到 MinIO，条目写库并写入检索索引。
func (s *marketService) PostListing(ctx context.Context, farmer *model.User, input PostListingInput) (*model.Listing, error) {
	if strings.TrimSpace(input.Crop) == "" {
		return nil, errors.New("作物名称不能为空")
	}
	if input.QuantityKg < 1 || input.PricePerKg.LessThan(decimal.NewFromInt(1)) {
		return nil, errors.New("数量和单价必须大于等于 1")
	}

	listing := &model.Listing{
		FarmerName: farmer.Username,
		Crop:       strings.TrimSpace(input.Crop),
		QuantityKg: input.QuantityKg,
		PricePerKg: input.PricePerKg,
		Location:   farmer.Address,
		Phone:      farmer.Phone,
		Email:      farmer.Email,
	}

	// 1. 可选图片先上传，对象名用随机 ID 避免冲突
	if input.Photo != nil {
		objectName := fmt.Sprintf("listing-photos/%s", uuid.NewString())
		if err := storage.UploadObject(ctx, objectName, input.Photo, input.PhotoSize, input.PhotoContentType); err != nil {
			return nil, fmt.Errorf("上传图片失败: %w", err)
		}
		listing.PhotoObject = objectName
	}

	// 2. 条目写库
	if err := s.marketRepo.CreateListing(listing); err != nil {
		return nil, err
	}

	// 3. 写入检索索引；失败只记日志，不影响发布结果
	doc := model.EsListing{
		ListingID:  listing.ID,
		FarmerName: listing.FarmerName,
		Crop:       listing.Crop,
		Location:   listing.Location,
		PricePerKg: listing.PricePerKg.String(),
		QuantityKg: listing.QuantityKg,
	}
	if err := es.IndexListing(ctx, config.Conf.Elasticsearch.IndexName, doc); err != nil {
		log.Errorf("集市条目写入索引失败, listing=%d: %v", listing.ID, err)
	}

	return listing, nil
}

// ListMarket 列出全部在售作物并补上图片的限时链接。
func (s *marketService) ListMarket(ctx context.Context) ([]model.Listing, error) {
	listings, err := s.marketRepo.ListListings()
	if err != nil {
		return nil, err
	}
	s.fillPhotoURLs(ctx, listings)
	return listings, nil
}

// SearchListings 经 Elasticsearch 检索后回表取完整条目。
func (s *marketService) SearchListings(ctx context.Context, query string) []model.Listing {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Listing{}
	}

	ids, err := es.SearchListings(ctx, config.Conf.Elasticsearch.IndexName, query, 50)
	if err != nil {
		log.Errorf("集市检索失败, query=%s: %v", query, err)
		return []model.Listing{}
	}
	listings, err := s.marketRepo.FindListingsByIDs(ids)
	if err != nil {
		log.Errorf("检索回表失败: %v", err)
		return []model.Listing{}
	}
	s.fillPhotoURLs(ctx, listings)
	return listings
}

func (s *marketService) fillPhotoURLs(ctx context.Context, listings []model.Listing) {
	for i := range listings {
		if listings[i].PhotoObject == "" {
			continue
		}
		url, err := storage.PresignedGetURL(ctx, listings[i].PhotoObject, photoURLExpiry)
		if err != nil {
			log.Warnf("生成图片链接失败, listing=%d: %v", listings[i].ID, err)
			continue
		}
		listings[i].PhotoURL = url
	}
}

// PlaceOrder 下单：生成业务订单号、写库并发出订单事件。
func (s *marketService) PlaceOrder(ctx context.Context, buyer *model.User, listingID uint, deliveryOption string) (*model.Order, error) {
	if deliveryOption != model.DeliveryOptionPickup && deliveryOption != model.DeliveryOptionHome {
		return nil, errors.New("未知的配送方式")
	}

	listing, err := s.marketRepo.FindListingByID(listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("该作物已下架")
		}
		return nil, err
	}
	if listing.FarmerName == buyer.Username {
		return nil, errors.New("不能购买自己发布的作物")
	}

	order := &model.Order{
		OrderID:        uuid.NewString(),
		Crop:           listing.Crop,
		QuantityKg:     listing.QuantityKg,
		PricePerKg:     listing.PricePerKg,
		BuyerName:      buyer.Username,
		BuyerEmail:     buyer.Email,
		FarmerName:     listing.FarmerName,
		Status:         model.OrderStatusPending,
		DeliveryOption: deliveryOption,
	}
	if err := s.marketRepo.CreateOrder(order); err != nil {
		return nil, err
	}

	// 订单事件进 Kafka，由后台消费者维护卖家提醒；发送失败只记日志
	event := events.OrderEvent{
		OrderID:    order.OrderID,
		Crop:       order.Crop,
		QuantityKg: order.QuantityKg,
		BuyerName:  order.BuyerName,
		FarmerName: order.FarmerName,
	}
	if err := s.produceOrder(event); err != nil {
		log.Errorf("订单事件发送失败, order=%s: %v", order.OrderID, err)
	}

	return order, nil
}

// MyOrders 买家视角的订单列表。
func (s *marketService) MyOrders(buyerName string) ([]model.Order, error) {
	return s.marketRepo.ListOrdersByBuyer(buyerName)
}

// MySales 卖家视角的订单列表。
func (s *marketService) MySales(farmerName string) ([]model.Order, error) {
	return s.marketRepo.ListOrdersByFarmer(farmerName)
}

// PendingAlerts 读取并清零卖家的待处理订单提醒计数。
func (s *marketService) PendingAlerts(ctx context.Context, farmerName string) (int64, error) {
	count, err := s.marketRepo.GetPendingAlert(ctx, farmerName)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		if err := s.marketRepo.ClearPendingAlert(ctx, farmerName); err != nil {
			log.Warnf("清零订单提醒失败, farmer=%s: %v", farmerName, err)
		}
	}
	return count, nil
}

// AcceptOrder 卖家接受订单。自提直接接受；送货上门根据是否提供快递
// 信息区分亲自配送与快递配送。
func (s *marketService) AcceptOrder(farmerName, orderID string, courier *CourierInput) (*model.Order, error) {
	order, err := s.loadActionableOrder(farmerName, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case order.DeliveryOption == model.DeliveryOptionPickup:
		order.Status = model.OrderStatusAcceptedPickup
	case courier != nil && courier.CourierCompany != "":
		order.Status = model.OrderStatusAcceptedCourier
		order.CourierCompany = courier.CourierCompany
		order.TrackingNumber = courier.TrackingNumber
		order.ExpectedDelivery = courier.ExpectedDelivery
	default:
		order.Status = model.OrderStatusAcceptedDelivery
	}

	if err := s.marketRepo.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// RejectOrder 卖家拒绝订单。
func (s *marketService) RejectOrder(farmerName, orderID string) (*model.Order, error) {
	order, err := s.loadActionableOrder(farmerName, orderID)
	if err != nil {
		return nil, err
	}

	order.Status = model.OrderStatusRejected
	if err := s.marketRepo.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *marketService) loadActionableOrder(farmerName, orderID string) (*model.Order, error) {
	order, err := s.marketRepo.FindOrderByOrderID(orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("订单不存在")
		}
		return nil, err
	}
	if order.FarmerName != farmerName {
		return nil, ErrOrderNotOwned
	}
	if order.Status != model.OrderStatusPending {
		return nil, ErrOrderNotActionable
	}
	return order, nil
}

// Process 处理 Kafka 订单事件：给卖家的提醒计数加一。
func (s *marketService) Process(ctx context.Context, event events.OrderEvent) error {
	return s.marketRepo.IncrPendingAlert(ctx, event.FarmerName)
}
