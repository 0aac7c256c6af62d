// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carepulse-go/internal/config"
	"carepulse-go/pkg/database"
	"carepulse-go/pkg/log"
	"carepulse-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
// Abandon 在消费者放弃重试时被调用, 让任务的最终失败状态可以被记录下来。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocIngestTask) error
	Abandon(ctx context.Context, task tasks.DocIngestTask, reason string)
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

// ProduceIngestTask 发送一个文档摄取任务到 Kafka。
func ProduceIngestTask(task tasks.DocIngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理文档摄取任务。
// 摄取是后台任务，所有失败都在这里被回收：记录日志、计数，超过阈值后提交 offset 放弃。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "carepulse-ingest-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.DocIngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理摄取任务: JobID=%d, FileName=%s", task.JobID, task.FileName)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("处理摄取任务失败: JobID=%d, Error: %v", task.JobID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("ingest:attempts:%d", task.JobID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("摄取任务多次失败(>=3)，提交 offset 终止重试: JobID=%d", task.JobID)
				// 放弃前把任务标记为失败, 状态查询接口才不会一直显示处理中
				processor.Abandon(context.Background(), task, fmt.Sprintf("连续 %d 次处理失败, 已放弃: %v", attempts, err))
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
		} else {
			log.Infof("摄取任务处理成功: JobID=%d", task.JobID)
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("ingest:attempts:%d", task.JobID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
