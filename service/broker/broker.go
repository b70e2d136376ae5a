package broker

import (
	"context"
	"time"

	"WPProject/logger"
	errs "WPProject/tools/errs"
)

// PartyFormed 队列凑满后发给下游的事件。party_id 在组队瞬间生成，
// 下游按它去重（at-least-once 投递，可能重复收到）。
type PartyFormed struct {
	PartyID       string   `json:"party_id"`
	ContentID     string   `json:"content_id"`
	MemberUserIDs []string `json:"member_user_ids"`
}

type Publisher interface {
	PublishPartyFormed(ctx context.Context, ev PartyFormed) error
	Close() error
}

type Consumer interface {
	// Subscribe 阻塞消费直到 ctx 取消；handler 返回错误只记日志，不中断消费
	Subscribe(ctx context.Context, handler func(PartyFormed) error) error
	Close() error
}

// RetryingPublisher 带退避重试的发布装饰器。
// 重试耗尽只记日志返回错误——队列在发布前已经清空，组队视为已提交，
// 不回滚（语义就是 at-least-once，丢事件的代价由运营日志兜底）。
type RetryingPublisher struct {
	inner    Publisher
	attempts int
	backoff  time.Duration
}

func NewRetryingPublisher(inner Publisher, attempts int, backoff time.Duration) *RetryingPublisher {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &RetryingPublisher{inner: inner, attempts: attempts, backoff: backoff}
}

func (p *RetryingPublisher) PublishPartyFormed(ctx context.Context, ev PartyFormed) error {
	var lastErr error
	backoff := p.backoff
	for i := 0; i < p.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return errs.Wrap(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := p.inner.PublishPartyFormed(ctx, ev); err != nil {
			lastErr = err
			logger.Warnf("[broker] publish attempt %d/%d failed party=%s err=%v",
				i+1, p.attempts, ev.PartyID, err)
			continue
		}
		return nil
	}
	logger.Errorf("[broker] party formed event dropped after %d attempts party=%s content=%s",
		p.attempts, ev.PartyID, ev.ContentID)
	return errs.ErrPublishFailed.WrapMsg("attempts exhausted", "party_id", ev.PartyID, "err", lastErr)
}

func (p *RetryingPublisher) Close() error { return p.inner.Close() }
