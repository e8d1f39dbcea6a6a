// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"amazing-kissan-go/internal/service"
	"amazing-kissan-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MarketHandler 负责处理作物集市相关的 API 请求。
type MarketHandler struct {
	marketService service.MarketService
}

// NewMarketHandler 创建一个新的 MarketHandler 实例。
func NewMarketHandler(marketService service.MarketService) *MarketHandler {
	return &MarketHandler{marketService: marketService}
}

// PostListing 发布一条待售作物。请求是 multipart 表单，图片字段可选。
func (h *MarketHandler) PostListing(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	crop := c.PostForm("crop")
	quantityKg, err := strconv.Atoi(c.PostForm("quantityKg"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的数量",
		})
		return
	}
	pricePerKg, err := decimal.NewFromString(c.PostForm("pricePerKg"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的单价",
		})
		return
	}

	input := service.PostListingInput{
		Crop:       crop,
		QuantityKg: quantityKg,
		PricePerKg: pricePerKg,
	}

	// 图片可选，解析失败等同于未上传
	if fileHeader, err := c.FormFile("photo"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    http.StatusBadRequest,
				"message": "图片读取失败",
			})
			return
		}
		defer file.Close()
		input.Photo = file
		input.PhotoSize = fileHeader.Size
		input.PhotoContentType = fileHeader.Header.Get("Content-Type")
	}

	listing, err := h.marketService.PostListing(c.Request.Context(), user, input)
	if err != nil {
		log.Warnf("PostListing: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	log.Infof("User '%s' posted listing %d (%s)", user.Username, listing.ID, listing.Crop)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": listing, "message": "success"})
}

// ListMarket 列出全部在售作物。
func (h *MarketHandler) ListMarket(c *gin.Context) {
	listings, err := h.marketService.ListMarket(c.Request.Context())
	if err != nil {
		log.Errorf("ListMarket: Failed, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取集市列表失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": listings, "message": "success"})
}

// Search 按关键词检索集市条目。
func (h *MarketHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "查询参数 q 不能为空",
		})
		return
	}

	listings := h.marketService.SearchListings(c.Request.Context(), query)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": listings, "message": "success"})
}

// PlaceOrderRequest 定义了下单 API 的请求体结构。
type PlaceOrderRequest struct {
	ListingID      uint   `json:"listingId" binding:"required"`
	DeliveryOption string `json:"deliveryOption" binding:"required"`
}

// PlaceOrder 买家下单。
func (h *MarketHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("PlaceOrder: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：listingId 和 deliveryOption 不能为空",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	order, err := h.marketService.PlaceOrder(c.Request.Context(), user, req.ListingID, req.DeliveryOption)
	if err != nil {
		log.Warnf("PlaceOrder: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	log.Infof("User '%s' placed order %s for '%s'", user.Username, order.OrderID, order.Crop)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": order, "message": "success"})
}

// MyOrders 买家视角的订单列表。
func (h *MarketHandler) MyOrders(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	orders, err := h.marketService.MyOrders(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取订单失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": orders, "message": "success"})
}

// MySales 卖家视角的订单列表，附带待处理订单提醒数。
func (h *MarketHandler) MySales(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	orders, err := h.marketService.MySales(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取销售记录失败",
		})
		return
	}

	alerts, err := h.marketService.PendingAlerts(c.Request.Context(), user.Username)
	if err != nil {
		log.Warnf("MySales: Failed to read pending alerts for '%s', error: %v", user.Username, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"orders":        orders,
			"pendingAlerts": alerts,
		},
	})
}

// AcceptOrderRequest 定义了接受订单 API 的请求体结构。
// 快递配送时填写快递信息，自提与亲自配送留空。
type AcceptOrderRequest struct {
	CourierCompany   string `json:"courierCompany"`
	TrackingNumber   string `json:"trackingNumber"`
	ExpectedDelivery string `json:"expectedDelivery"`
}

// AcceptOrder 卖家接受订单。
func (h *MarketHandler) AcceptOrder(c *gin.Context) {
	orderID := c.Param("orderId")

	var req AcceptOrderRequest
	// 请求体可选
	_ = c.ShouldBindJSON(&req)

	user, ok := currentUser(c)
	if !ok {
		return
	}

	var courier *service.CourierInput
	if req.CourierCompany != "" {
		courier = &service.CourierInput{
			CourierCompany:   req.CourierCompany,
			TrackingNumber:   req.TrackingNumber,
			ExpectedDelivery: req.ExpectedDelivery,
		}
	}

	order, err := h.marketService.AcceptOrder(user.Username, orderID, courier)
	if err != nil {
		h.writeOrderActionError(c, user.Username, orderID, err)
		return
	}

	log.Infof("User '%s' accepted order %s", user.Username, orderID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": order, "message": "success"})
}

// RejectOrder 卖家拒绝订单。
func (h *MarketHandler) RejectOrder(c *gin.Context) {
	orderID := c.Param("orderId")

	user, ok := currentUser(c)
	if !ok {
		return
	}

	order, err := h.marketService.RejectOrder(user.Username, orderID)
	if err != nil {
		h.writeOrderActionError(c, user.Username, orderID, err)
		return
	}

	log.Infof("User '%s' rejected order %s", user.Username, orderID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": order, "message": "success"})
}

func (h *MarketHandler) writeOrderActionError(c *gin.Context, username, orderID string, err error) {
	log.Warnf("Order action failed for user '%s', order '%s', error: %v", username, orderID, err)
	switch {
	case errors.Is(err, service.ErrOrderNotOwned):
		c.JSON(http.StatusForbidden, gin.H{
			"code":    http.StatusForbidden,
			"message": "只能处理自己的订单",
		})
	case errors.Is(err, service.ErrOrderNotActionable):
		c.JSON(http.StatusConflict, gin.H{
			"code":    http.StatusConflict,
			"message": "订单已处理，不能重复操作",
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
	}
}
