package queue

import (
	"context"
	"time"
)

// Entry 队列里的一个等待成员。身份三元组不落存储，
// 这里只有可逆 handle（路由用）和 fingerprint（去重用）。
type Entry struct {
	Handle      string `json:"handle"`
	UserID      string `json:"user_id"`
	Fingerprint string `json:"fingerprint"`
}

// State 某个 content_id 的等待队列。人数就是 len(Members)，
// 不单独存 size 字段，避免两者漂移。
type State struct {
	Members []Entry `json:"members"`
}

func (s State) Size() int { return len(s.Members) }

func (s State) Contains(fingerprint string) bool {
	for _, m := range s.Members {
		if m.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// Store 队列共享存储。多写方并发改同一个 content_id，
// 所有修改必须走 CompareAndSwap / CompareAndDelete，先读后写不回验版本就是丢更新。
//
// 版本约定：key 不存在时版本为 0；每次成功写入版本 +1。
type Store interface {
	// Get 返回当前状态和版本；key 不存在时返回零值 State 和版本 0，不报错
	Get(ctx context.Context, contentID string) (State, uint64, error)

	// CompareAndSwap 版本一致时写入新状态并重置 TTL；版本不一致返回 false，调用方需重读重试
	CompareAndSwap(ctx context.Context, contentID string, expected uint64, st State, ttl time.Duration) (bool, error)

	// CompareAndDelete 版本一致时删除整个队列（组队成功、最后一人离开）
	CompareAndDelete(ctx context.Context, contentID string, expected uint64) (bool, error)

	// Delete 无条件删除
	Delete(ctx context.Context, contentID string) error
}
