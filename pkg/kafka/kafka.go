package kafka

import (
	"context"

	"github.com/IBM/sarama"

	"websocket-presence/pkg/logger"
)

// Producer 生产者
type Producer struct {
	asyncProducer sarama.AsyncProducer
}

// InitProducer 初始化生产者
func InitProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	asyncProducer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return newProducer(asyncProducer), nil
}

// newProducer 包装异步生产者并启动错误回流消费
// sarama要求Errors通道必须被持续读取，否则内部分发阻塞，
// Input通道随之写满，上层的发送调用会永久挂起
func newProducer(asyncProducer sarama.AsyncProducer) *Producer {
	p := &Producer{asyncProducer: asyncProducer}
	go p.drainErrors()
	return p
}

// drainErrors 消费发送失败回流，失败只记日志（尽力而为的侧信道）
func (p *Producer) drainErrors() {
	for err := range p.asyncProducer.Errors() {
		logger.GetLogger().Warn(context.Background(), "Kafka message delivery failed",
			logger.F("topic", err.Msg.Topic),
			logger.F("error", err.Err.Error()))
	}
}

// SendMessage 发送消息（异步，按key哈希分区保证同一用户的事件有序）
func (p *Producer) SendMessage(topic string, key, value []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	p.asyncProducer.Input() <- msg
	return nil
}

// Close 关闭生产者，等待在途消息落地后Errors通道关闭，回流goroutine随之退出
func (p *Producer) Close() error {
	return p.asyncProducer.Close()
}
