package wsconn

import (
	"sync"
)

// Registry 进程内连接表：房间 key（party_id 或 content_id）→ 连接集合。
// 只是路由表，不是成员权威（权威在 PartyRecord）；不落盘。
// 全部操作持同一把锁，禁止绕开锁直接摸 map。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client // key -> connID -> client
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]*Client)}
}

func (r *Registry) Add(key string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		room = make(map[string]*Client)
		r.rooms[key] = room
	}
	room[c.ConnID] = c
}

// Remove 幂等：从未注册过的连接摘除是 no-op
func (r *Registry) Remove(key string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		return
	}
	delete(room, c.ConnID)
	if len(room) == 0 {
		delete(r.rooms, key)
	}
}

// ListFor 返回快照，调用方遍历期间不持锁
func (r *Registry) ListFor(key string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[key]
	if len(room) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count(key string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}
