package broker

import (
	"context"
	"testing"
	"time"

	errs "WPProject/tools/errs"
)

// flakyPublisher 前 failures 次失败，之后成功
type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) PublishPartyFormed(context.Context, PartyFormed) error {
	p.calls++
	if p.calls <= p.failures {
		return errs.New("broker down")
	}
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func TestRetryingPublisherRecovers(t *testing.T) {
	inner := &flakyPublisher{failures: 2}
	pub := NewRetryingPublisher(inner, 4, time.Millisecond)

	err := pub.PublishPartyFormed(context.Background(), PartyFormed{PartyID: "p1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryingPublisherExhausts(t *testing.T) {
	inner := &flakyPublisher{failures: 10}
	pub := NewRetryingPublisher(inner, 3, time.Millisecond)

	err := pub.PublishPartyFormed(context.Background(), PartyFormed{PartyID: "p1"})
	if !errs.IsCode(err, errs.PublishFailedCode) {
		t.Fatalf("err = %v, want publish failed", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryingPublisherHonorsContext(t *testing.T) {
	inner := &flakyPublisher{failures: 10}
	pub := NewRetryingPublisher(inner, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.PublishPartyFormed(ctx, PartyFormed{PartyID: "p1"})
	if err == nil {
		t.Fatalf("expected error after cancel")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1 before cancel stops retries", inner.calls)
	}
}
