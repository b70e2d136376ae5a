package party

import (
	"context"
	"time"

	"WPProject/logger"
	"WPProject/service/wsconn"
	ids "WPProject/tools/ids"
)

// Broadcaster 一个放映厅内的消息中继。
//
// 规则：
//   - play/pause/seeked 原样转发给除发送者外的所有连接，并刷新进度缓存
//   - timeupdate 只刷新缓存，不转发（转发会形成风暴）
//   - chat 先落库（按 msg_id 幂等）再转发，发送者自己不回显
//   - 新连接只对它单发缓存进度和历史聊天，不打扰其他人
//
// 单次广播里某个连接发送失败只摘除那一个连接，不中断对其余连接的投递。
type Broadcaster struct {
	registry *wsconn.Registry
	cache    PlaybackCache
	records  RecordStore
}

func NewBroadcaster(registry *wsconn.Registry, cache PlaybackCache, records RecordStore) *Broadcaster {
	return &Broadcaster{registry: registry, cache: cache, records: records}
}

// HandleConnect 注册连接、回放进度与聊天记录、广播入场通知
func (b *Broadcaster) HandleConnect(ctx context.Context, partyID string, c *wsconn.Client) {
	b.registry.Add(partyID, c)

	if seconds, ok, err := b.cache.Get(ctx, partyID); err != nil {
		logger.Warnf("[party] playback cache read failed party=%s: %v", partyID, err)
	} else if ok {
		// 只发给新来的这一个连接
		c.TrySend(BuildTimeUpdate(seconds).Marshal())
	}

	if rec, err := b.records.FindByID(ctx, partyID); err != nil {
		logger.Warnf("[party] transcript read failed party=%s: %v", partyID, err)
	} else if rec != nil {
		for _, msg := range rec.Messages {
			c.TrySend((&Frame{Type: msg.Type, MsgID: msg.MsgID, UserID: msg.UserID, Text: msg.Text}).Marshal())
		}
	}

	notice := buildNotice(FrameJoined, ids.GenerateString(), c.UserID)
	b.appendMessage(ctx, partyID, notice)
	b.sendToOthers(partyID, c, notice.Marshal())

	logger.Infof("[party] connected party=%s user=%s conn=%s total=%d",
		partyID, c.UserID, c.ConnID, b.registry.Count(partyID))
}

// HandleFrame 处理一条入站消息
func (b *Broadcaster) HandleFrame(ctx context.Context, partyID string, c *wsconn.Client, f *Frame) {
	switch {
	case f.IsControl():
		b.sendToOthers(partyID, c, f.Marshal())
		if err := b.cache.Set(ctx, partyID, f.Time); err != nil {
			logger.Warnf("[party] playback cache write failed party=%s: %v", partyID, err)
		}

	case f.Type == FrameTimeUpdate:
		if err := b.cache.Set(ctx, partyID, f.Time); err != nil {
			logger.Warnf("[party] playback cache write failed party=%s: %v", partyID, err)
		}

	case f.Type == FrameChat:
		f.MsgID = ids.GenerateString()
		f.UserID = c.UserID
		b.appendMessage(ctx, partyID, f)
		b.sendToOthers(partyID, c, f.Marshal())

	default:
		logger.Debugf("[party] ignoring frame type=%s party=%s", f.Type, partyID)
	}
}

// HandleDisconnect 幂等注销 + 离场通知
func (b *Broadcaster) HandleDisconnect(ctx context.Context, partyID string, c *wsconn.Client) {
	b.registry.Remove(partyID, c)
	c.Close()

	notice := buildNotice(FrameLeft, ids.GenerateString(), c.UserID)
	b.appendMessage(ctx, partyID, notice)
	b.sendToOthers(partyID, c, notice.Marshal())

	logger.Infof("[party] disconnected party=%s user=%s conn=%s total=%d",
		partyID, c.UserID, c.ConnID, b.registry.Count(partyID))
}

func (b *Broadcaster) appendMessage(ctx context.Context, partyID string, f *Frame) {
	msg := Message{MsgID: f.MsgID, Type: f.Type, UserID: f.UserID, Text: f.Text, SentAt: time.Now()}
	if err := b.records.AppendMessage(ctx, partyID, msg); err != nil {
		logger.Errorf("[party] append message failed party=%s msg=%s: %v", partyID, f.MsgID, err)
	}
}

// sendToOthers 给 sender 以外的所有连接投递；投不进去的连接当场摘除
func (b *Broadcaster) sendToOthers(partyID string, sender *wsconn.Client, payload []byte) {
	for _, peer := range b.registry.ListFor(partyID) {
		if sender != nil && peer.ConnID == sender.ConnID {
			continue
		}
		if !peer.TrySend(payload) {
			logger.Warnf("[party] dropping stale connection party=%s conn=%s", partyID, peer.ConnID)
			b.registry.Remove(partyID, peer)
			peer.Close()
		}
	}
}
