// Package events 定义了通过 Kafka 在组件之间传递的事件结构。
package events

// OrderEvent 是下单后发往 Kafka 的订单事件，由后台消费者处理卖家提醒。
type OrderEvent struct {
	OrderID    string `json:"orderId"`
	Crop       string `json:"crop"`
	QuantityKg int    `json:"quantityKg"`
	BuyerName  string `json:"buyerName"`
	FarmerName string `json:"farmerName"`
}
