// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/pkg/database"
	"amazing-kissan-go/pkg/events"
	"amazing-kissan-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// OrderProcessor defines the interface for any service that can process an order event.
// This decouples the Kafka consumer from the concrete market implementation.
type OrderProcessor interface {
	Process(ctx context.Context, event events.OrderEvent) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceOrderEvent 发送一个订单事件到 Kafka。
func ProduceOrderEvent(event events.OrderEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = producer.WriteMessages(context.Background(),
		kafka.Message{
			Value: eventBytes,
		},
	)
	return err
}

// StartConsumer 启动一个 Kafka 消费者来处理订单事件。
func StartConsumer(cfg config.KafkaConfig, processor OrderProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "amazing-kissan-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break // 退出循环，可能需要重启策略
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var event events.OrderEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理订单事件: OrderID=%s, Farmer=%s", event.OrderID, event.FarmerName)
		if err := processor.Process(context.Background(), event); err != nil {
			log.Errorf("处理订单事件失败: OrderID=%s, Error: %v", event.OrderID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", event.OrderID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("订单事件多次失败(>=3)，提交 offset 终止重试: OrderID=%s", event.OrderID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("订单事件处理成功: OrderID=%s", event.OrderID)
			// 清理失败计数
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", event.OrderID)).Err()
			// 事件处理成功后，手动提交 offset
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
