package kafka

import (
	"context"
	"encoding/json"
	"time"

	"WPProject/logger"
	"WPProject/service/broker"
	errs "WPProject/tools/errs"

	"github.com/Shopify/sarama"
)

// Config 生产/消费共用配置
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func buildBaseConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0

	// Producer
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner // Key 控制分区，同 content 事件有序

	// Consumer
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	// Net
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

type Producer struct {
	cfg  Config
	prod sarama.SyncProducer
}

func NewProducer(cfg Config) (*Producer, error) {
	prod, err := sarama.NewSyncProducer(cfg.Brokers, buildBaseConfig())
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer init")
	}
	return &Producer{cfg: cfg, prod: prod}, nil
}

func (p *Producer) PublishPartyFormed(_ context.Context, ev broker.PartyFormed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.cfg.Topic,
		Key:   sarama.StringEncoder(ev.ContentID),
		Value: sarama.ByteEncoder(data),
	}
	partition, offset, err := p.prod.SendMessage(msg)
	if err != nil {
		return errs.WrapMsg(err, "kafka publish", "topic", p.cfg.Topic)
	}
	logger.Debugf("[kafka] party formed sent topic=%s partition=%d offset=%d", p.cfg.Topic, partition, offset)
	return nil
}

func (p *Producer) Close() error { return p.prod.Close() }

type ConsumerGroup struct {
	cfg   Config
	group sarama.ConsumerGroup
}

func NewConsumerGroup(cfg Config) (*ConsumerGroup, error) {
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, buildBaseConfig())
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka consumer group init")
	}
	return &ConsumerGroup{cfg: cfg, group: group}, nil
}

func (c *ConsumerGroup) Subscribe(ctx context.Context, handler func(broker.PartyFormed) error) error {
	go func() {
		for err := range c.group.Errors() {
			logger.Errorf("[kafka] consumer group error: %v", err)
		}
	}()

	h := &groupHandler{handler: handler}
	return runConsumeLoop(ctx, time.Second, func() error {
		return c.group.Consume(ctx, []string{c.cfg.Topic}, h)
	})
}

// runConsumeLoop Consume 正常返回（rebalance）立即重入；
// 返回错误时退避一拍再试，broker 宕机期间不空转
func runConsumeLoop(ctx context.Context, backoff time.Duration, consume func() error) error {
	for {
		err := consume()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Errorf("[kafka] consume error: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
}

func (c *ConsumerGroup) Close() error { return c.group.Close() }

type groupHandler struct {
	handler func(broker.PartyFormed) error
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var ev broker.PartyFormed
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Errorf("[kafka] bad payload topic=%s offset=%d: %v", msg.Topic, msg.Offset, err)
			session.MarkMessage(msg, "")
			continue
		}
		if err := h.handler(ev); err != nil {
			logger.Errorf("[kafka] handler error party=%s: %v", ev.PartyID, err)
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
