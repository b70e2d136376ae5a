package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"WPProject/logger"
	"WPProject/service/broker"
	errs "WPProject/tools/errs"

	"github.com/nats-io/nats.go"
)

const msgIDHeader = "WP-Msg-Id"

// Config 客户端配置
type Config struct {
	Servers       []string
	Name          string
	Subject       string
	Queue         string // 消费队列组；同组内事件只投一次
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func (c *Config) norm() error {
	if len(c.Servers) == 0 {
		return errors.New("nats servers missing")
	}
	if c.Subject == "" {
		return errors.New("nats subject missing")
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	return nil
}

// Client 统一客户端，生产和消费共用一条连接
type Client struct {
	cfg Config
	nc  *nats.Conn
	sub *nats.Subscription
}

func New(cfg Config) (*Client, error) {
	if err := cfg.norm(); err != nil {
		return nil, err
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, nc: nc}, nil
}

// PublishPartyFormed 用 NewMsg 构造，msg id 放 header，消费方可按 party_id 去重
func (c *Client) PublishPartyFormed(_ context.Context, ev broker.PartyFormed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errs.Wrap(err)
	}
	msg := nats.NewMsg(c.cfg.Subject)
	msg.Data = data
	msg.Header.Add(msgIDHeader, ev.PartyID)
	if err := c.nc.PublishMsg(msg); err != nil {
		return errs.WrapMsg(err, "publish failed", "subject", c.cfg.Subject)
	}
	return nil
}

// Subscribe 队列组订阅，阻塞到 ctx 取消
func (c *Client) Subscribe(ctx context.Context, handler func(broker.PartyFormed) error) error {
	sub, err := c.nc.QueueSubscribe(c.cfg.Subject, c.cfg.Queue, func(m *nats.Msg) {
		var ev broker.PartyFormed
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			logger.Errorf("[natsx] bad party formed payload: %v", err)
			return
		}
		if err := handler(ev); err != nil {
			logger.Errorf("[natsx] handler error party=%s: %v", ev.PartyID, err)
		}
	})
	if err != nil {
		return errs.WrapMsg(err, "subscribe failed", "subject", c.cfg.Subject)
	}
	c.sub = sub
	<-ctx.Done()
	return ctx.Err()
}

// Close 优雅关闭
func (c *Client) Close() error {
	if c.sub != nil {
		_ = c.sub.Drain()
	}
	if c.nc != nil {
		return c.nc.Drain()
	}
	return nil
}
