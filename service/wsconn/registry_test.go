package wsconn

import (
	"strconv"
	"sync"
	"testing"
)

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	c1 := NewClient("conn-1", "u1", nil, 8)
	c2 := NewClient("conn-2", "u2", nil, 8)

	r.Add("room-a", c1)
	r.Add("room-a", c2)
	if r.Count("room-a") != 2 {
		t.Fatalf("count = %d, want 2", r.Count("room-a"))
	}

	// 重复注册同一连接不翻倍
	r.Add("room-a", c1)
	if r.Count("room-a") != 2 {
		t.Fatalf("count after re-add = %d, want 2", r.Count("room-a"))
	}

	r.Remove("room-a", c1)
	if r.Count("room-a") != 1 {
		t.Fatalf("count after remove = %d, want 1", r.Count("room-a"))
	}

	// 幂等摘除
	r.Remove("room-a", c1)
	r.Remove("room-b", c1)
	if r.Count("room-a") != 1 {
		t.Fatalf("count after repeated remove = %d, want 1", r.Count("room-a"))
	}

	r.Remove("room-a", c2)
	if r.Count("room-a") != 0 {
		t.Fatalf("count after last remove = %d, want 0", r.Count("room-a"))
	}
	if got := r.ListFor("room-a"); got != nil {
		t.Fatalf("empty room should list nil, got %v", got)
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	c1 := NewClient("conn-1", "u1", nil, 8)
	r.Add("room-a", c1)

	snap := r.ListFor("room-a")
	if len(snap) != 1 || snap[0] != c1 {
		t.Fatalf("snapshot = %v", snap)
	}

	// 快照与注册表脱钩，之后的摘除不影响已取出的切片
	r.Remove("room-a", c1)
	if len(snap) != 1 {
		t.Fatalf("snapshot mutated after remove")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient("conn-"+strconv.Itoa(i), "u", nil, 8)
			r.Add("room", c)
			r.ListFor("room")
			r.Remove("room", c)
		}(i)
	}
	wg.Wait()
	if r.Count("room") != 0 {
		t.Fatalf("count after churn = %d, want 0", r.Count("room"))
	}
}

func TestClientTrySend(t *testing.T) {
	c := NewClient("conn-1", "u1", nil, 2)

	if !c.TrySend([]byte("a")) || !c.TrySend([]byte("b")) {
		t.Fatalf("sends within queue capacity must succeed")
	}
	// 队列打满不阻塞，直接拒绝
	if c.TrySend([]byte("c")) {
		t.Fatalf("send into full queue must fail")
	}

	if got := <-c.Send; string(got) != "a" {
		t.Fatalf("delivery order broken: %q", got)
	}
	if got := <-c.Send; string(got) != "b" {
		t.Fatalf("delivery order broken: %q", got)
	}

	c.Close()
	c.Close() // 幂等
	select {
	case <-c.Closed():
	default:
		t.Fatalf("Closed() not signaled after Close")
	}
	if c.TrySend([]byte("d")) {
		t.Fatalf("send after close must fail")
	}
}
