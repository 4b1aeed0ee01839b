package mq

import (
	"log"

	"vaultcredits/internal/config"

	"github.com/IBM/sarama"
)

// Producer Kafka 同步生产者
// 以依赖注入方式传给需要发消息的组件，不做包级全局
type Producer struct {
	producer sarama.SyncProducer
}

// InitKafka 初始化 Kafka 生产者
func InitKafka(cfg *config.KafkaConfig) *Producer {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		log.Fatalf("创建 Kafka 生产者失败: %v", err)
	}

	log.Println("Kafka 生产者创建成功")
	return &Producer{producer: producer}
}

// SendMessage 发送消息
func (p *Producer) SendMessage(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

// Close 关闭生产者
func (p *Producer) Close() {
	if p != nil && p.producer != nil {
		p.producer.Close()
	}
}
