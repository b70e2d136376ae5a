package party

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"WPProject/service/wsconn"
)

// fakeCache 进程内 PlaybackCache
type fakeCache struct {
	mu   sync.Mutex
	data map[string]float64
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string]float64)} }

func (c *fakeCache) Get(_ context.Context, partyID string) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[partyID]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, partyID string, seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[partyID] = seconds
	return nil
}

// fakeRecords 进程内 RecordStore，幂等语义与 mongo 实现一致
type fakeRecords struct {
	mu   sync.Mutex
	recs map[string]*PartyRecord
}

func newFakeRecords() *fakeRecords { return &fakeRecords{recs: make(map[string]*PartyRecord)} }

func (s *fakeRecords) Create(_ context.Context, rec PartyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.PartyID]; ok {
		return nil
	}
	cp := rec
	s.recs[rec.PartyID] = &cp
	return nil
}

func (s *fakeRecords) AppendMessage(_ context.Context, partyID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[partyID]
	if !ok {
		rec = &PartyRecord{PartyID: partyID, CreatedAt: time.Now()}
		s.recs[partyID] = rec
	}
	for _, m := range rec.Messages {
		if m.MsgID == msg.MsgID {
			return nil
		}
	}
	rec.Messages = append(rec.Messages, msg)
	return nil
}

func (s *fakeRecords) FindByID(_ context.Context, partyID string) (*PartyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[partyID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Messages = append([]Message(nil), rec.Messages...)
	return &cp, nil
}

func (s *fakeRecords) FindByMemberUserID(_ context.Context, userID string) (*PartyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		for _, u := range rec.MemberUserIDs {
			if u == userID {
				cp := *rec
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func drain(c *wsconn.Client) []*Frame {
	var out []*Frame
	for {
		select {
		case raw := <-c.Send:
			f := &Frame{}
			if err := json.Unmarshal(raw, f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}

func newTestBroadcaster() (*Broadcaster, *fakeCache, *fakeRecords, *wsconn.Registry) {
	reg := wsconn.NewRegistry()
	cache := newFakeCache()
	records := newFakeRecords()
	return NewBroadcaster(reg, cache, records), cache, records, reg
}

func TestConnectReplaysOnlyToNewcomer(t *testing.T) {
	b, cache, records, _ := newTestBroadcaster()
	ctx := context.Background()

	_ = cache.Set(ctx, "p1", 42.5)
	_ = records.Create(ctx, PartyRecord{PartyID: "p1", ContentID: "film-42"})
	_ = records.AppendMessage(ctx, "p1", Message{MsgID: "m1", Type: FrameChat, UserID: "u1", Text: "hi"})

	old := wsconn.NewClient("conn-old", "u1", nil, 16)
	b.HandleConnect(ctx, "p1", old)
	drain(old) // 清掉 old 自己接入时的回放

	fresh := wsconn.NewClient("conn-new", "u2", nil, 16)
	b.HandleConnect(ctx, "p1", fresh)

	got := drain(fresh)
	if len(got) < 2 {
		t.Fatalf("newcomer got %d frames, want playback + transcript", len(got))
	}
	if got[0].Type != FrameTimeUpdate || got[0].Time != 42.5 {
		t.Fatalf("first frame = %+v, want timeupdate 42.5", got[0])
	}
	if got[1].Type != FrameChat || got[1].Text != "hi" {
		t.Fatalf("second frame = %+v, want chat replay", got[1])
	}

	// 老成员只收到入场通知，不被回放打扰
	oldGot := drain(old)
	if len(oldGot) != 1 || oldGot[0].Type != FrameJoined || oldGot[0].UserID != "u2" {
		t.Fatalf("old member frames = %+v, want single joined notice", oldGot)
	}
}

func TestControlFrameBroadcastAndCache(t *testing.T) {
	b, cache, _, _ := newTestBroadcaster()
	ctx := context.Background()

	sender := wsconn.NewClient("conn-1", "u1", nil, 16)
	peer := wsconn.NewClient("conn-2", "u2", nil, 16)
	b.HandleConnect(ctx, "p1", sender)
	b.HandleConnect(ctx, "p1", peer)
	drain(sender)
	drain(peer)

	b.HandleFrame(ctx, "p1", sender, &Frame{Type: FramePause, Time: 120})

	if got := drain(sender); len(got) != 0 {
		t.Fatalf("sender must not get its own control frame back: %+v", got)
	}
	got := drain(peer)
	if len(got) != 1 || got[0].Type != FramePause || got[0].Time != 120 {
		t.Fatalf("peer frames = %+v, want single pause@120", got)
	}
	if v, ok, _ := cache.Get(ctx, "p1"); !ok || v != 120 {
		t.Fatalf("cache = %v/%v, want 120", v, ok)
	}
}

func TestTimeUpdateCachesWithoutBroadcast(t *testing.T) {
	b, cache, _, _ := newTestBroadcaster()
	ctx := context.Background()

	sender := wsconn.NewClient("conn-1", "u1", nil, 16)
	peer := wsconn.NewClient("conn-2", "u2", nil, 16)
	b.HandleConnect(ctx, "p1", sender)
	b.HandleConnect(ctx, "p1", peer)
	drain(sender)
	drain(peer)

	b.HandleFrame(ctx, "p1", sender, &Frame{Type: FrameTimeUpdate, Time: 33})

	if got := drain(peer); len(got) != 0 {
		t.Fatalf("timeupdate must not be forwarded: %+v", got)
	}
	if v, ok, _ := cache.Get(ctx, "p1"); !ok || v != 33 {
		t.Fatalf("cache = %v/%v, want 33", v, ok)
	}
}

func TestChatPersistedAndNotEchoed(t *testing.T) {
	b, _, records, _ := newTestBroadcaster()
	ctx := context.Background()

	sender := wsconn.NewClient("conn-1", "u1", nil, 16)
	peer := wsconn.NewClient("conn-2", "u2", nil, 16)
	b.HandleConnect(ctx, "p1", sender)
	b.HandleConnect(ctx, "p1", peer)
	drain(sender)
	drain(peer)

	b.HandleFrame(ctx, "p1", sender, &Frame{Type: FrameChat, Text: "first"})
	b.HandleFrame(ctx, "p1", sender, &Frame{Type: FrameChat, Text: "second"})

	if got := drain(sender); len(got) != 0 {
		t.Fatalf("chat echoed back to sender: %+v", got)
	}
	got := drain(peer)
	if len(got) != 2 || got[0].Text != "first" || got[1].Text != "second" {
		t.Fatalf("peer chat frames = %+v", got)
	}
	if got[0].MsgID == "" || got[0].UserID != "u1" {
		t.Fatalf("chat frame missing server fields: %+v", got[0])
	}

	rec, _ := records.FindByID(ctx, "p1")
	if rec == nil {
		t.Fatalf("no record after chat")
	}
	var chats []Message
	for _, m := range rec.Messages {
		if m.Type == FrameChat {
			chats = append(chats, m)
		}
	}
	if len(chats) != 2 || chats[0].Text != "first" || chats[1].Text != "second" {
		t.Fatalf("durable chat history = %+v", chats)
	}
}

func TestSlowPeerEvicted(t *testing.T) {
	b, _, _, reg := newTestBroadcaster()
	ctx := context.Background()

	sender := wsconn.NewClient("conn-1", "u1", nil, 16)
	slow := wsconn.NewClient("conn-2", "u2", nil, 4)
	healthy := wsconn.NewClient("conn-3", "u3", nil, 16)
	b.HandleConnect(ctx, "p1", sender)
	b.HandleConnect(ctx, "p1", slow)
	b.HandleConnect(ctx, "p1", healthy)
	drain(sender)
	drain(healthy)
	drain(slow)
	// 把 slow 的队列填满，让下一条投递失败
	for slow.TrySend([]byte("{}")) {
	}

	b.HandleFrame(ctx, "p1", sender, &Frame{Type: FramePlay, Time: 10})

	if reg.Count("p1") != 2 {
		t.Fatalf("room size = %d, want slow peer evicted only", reg.Count("p1"))
	}
	select {
	case <-slow.Closed():
	default:
		t.Fatalf("slow peer not closed")
	}
	got := drain(healthy)
	if len(got) != 1 || got[0].Type != FramePlay {
		t.Fatalf("healthy peer frames = %+v, want play frame", got)
	}
}

func TestDisconnectNotice(t *testing.T) {
	b, _, records, reg := newTestBroadcaster()
	ctx := context.Background()

	leaver := wsconn.NewClient("conn-1", "u1", nil, 16)
	peer := wsconn.NewClient("conn-2", "u2", nil, 16)
	b.HandleConnect(ctx, "p1", leaver)
	b.HandleConnect(ctx, "p1", peer)
	drain(peer)

	b.HandleDisconnect(ctx, "p1", leaver)

	if reg.Count("p1") != 1 {
		t.Fatalf("room size = %d after disconnect, want 1", reg.Count("p1"))
	}
	got := drain(peer)
	if len(got) != 1 || got[0].Type != FrameLeft || got[0].UserID != "u1" {
		t.Fatalf("peer frames = %+v, want left notice", got)
	}
	if got[0].Text != "left the party!" {
		t.Fatalf("notice text = %q", got[0].Text)
	}

	rec, _ := records.FindByID(ctx, "p1")
	last := rec.Messages[len(rec.Messages)-1]
	if last.Type != FrameLeft || last.UserID != "u1" {
		t.Fatalf("last durable message = %+v, want left notice", last)
	}
}
