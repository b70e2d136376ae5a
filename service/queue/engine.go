package queue

import (
	"context"
	"time"

	"WPProject/logger"
	"WPProject/service/broker"
	"WPProject/service/identity"
	errs "WPProject/tools/errs"
	ids "WPProject/tools/ids"
)

type EngineConf struct {
	PartySize     int           // 组队人数 N
	WaitTTL       time.Duration // MAX_PARTY_WAITING_TIME，每次写入重置
	MaxCASRetries int           // CAS 冲突重试上限
	RetryBackoff  time.Duration // 冲突重试间隔
}

func (c *EngineConf) norm() {
	if c.PartySize <= 1 {
		c.PartySize = 10
	}
	if c.WaitTTL <= 0 {
		c.WaitTTL = 10 * time.Minute
	}
	if c.MaxCASRetries <= 0 {
		c.MaxCASRetries = 8
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 20 * time.Millisecond
	}
}

// JoinResult 二选一：还在等 => Handle；凑满了 => PartyID + 成员
type JoinResult struct {
	Formed        bool     `json:"formed"`
	Handle        string   `json:"client_handle,omitempty"`
	PartyID       string   `json:"party_id,omitempty"`
	MemberUserIDs []string `json:"member_user_ids,omitempty"`
}

// Engine 排队业务。状态机（按 content_id）：
// EMPTY → FILLING → FORMED（终态，队列删除） | EMPTY（最后一人离开 / TTL 过期）
type Engine struct {
	store Store
	codec *identity.Codec
	pub   broker.Publisher
	conf  EngineConf
}

func NewEngine(store Store, codec *identity.Codec, pub broker.Publisher, conf EngineConf) *Engine {
	conf.norm()
	return &Engine{store: store, codec: codec, pub: pub, conf: conf}
}

func (e *Engine) PartySize() int { return e.conf.PartySize }

// Join 入队。重复的 (content, user, device) 直接 409；
// 自己是第 N 人时当场组队：队列原子删除、事件发布、返回 party_id。
//
// 去重检查必须在 CAS 循环里做：两个相同身份并发进来时，
// 输家重读到的状态里已经有赢家的 fingerprint。
func (e *Engine) Join(ctx context.Context, id identity.Identity) (JoinResult, error) {
	if err := id.Validate(); err != nil {
		return JoinResult{}, err
	}
	fp := e.codec.Fingerprint(id)
	handle, err := e.codec.Encode(id)
	if err != nil {
		return JoinResult{}, err
	}

	for attempt := 0; attempt < e.conf.MaxCASRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return JoinResult{}, errs.Wrap(ctx.Err())
			case <-time.After(e.conf.RetryBackoff):
			}
		}

		st, ver, err := e.store.Get(ctx, id.ContentID)
		if err != nil {
			return JoinResult{}, err
		}
		if st.Contains(fp) {
			return JoinResult{}, errs.ErrDuplicateJoin.WrapMsg("", "content_id", id.ContentID)
		}

		st.Members = append(st.Members, Entry{Handle: handle, UserID: id.UserID, Fingerprint: fp})

		if st.Size() >= e.conf.PartySize {
			ok, err := e.store.CompareAndDelete(ctx, id.ContentID, ver)
			if err != nil {
				return JoinResult{}, err
			}
			if !ok {
				continue // 有人抢先改了队列，重读
			}
			return e.formed(id.ContentID, st), nil
		}

		ok, err := e.store.CompareAndSwap(ctx, id.ContentID, ver, st, e.conf.WaitTTL)
		if err != nil {
			return JoinResult{}, err
		}
		if !ok {
			continue
		}
		logger.Debugf("[queue] joined content=%s size=%d/%d", id.ContentID, st.Size(), e.conf.PartySize)
		return JoinResult{Handle: handle}, nil
	}
	return JoinResult{}, errs.ErrTransientConflict.WrapMsg("", "content_id", id.ContentID)
}

// formed 队列已清空，组队即视为提交；发布失败只记日志，不复活队列。
// 发布用独立超时 context：第 N 人的请求此时取消也不能截断已提交事件的重试预算。
func (e *Engine) formed(contentID string, st State) JoinResult {
	partyID := ids.GenerateString()
	members := make([]string, 0, st.Size())
	for _, m := range st.Members {
		members = append(members, m.UserID)
	}

	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev := broker.PartyFormed{PartyID: partyID, ContentID: contentID, MemberUserIDs: members}
	if err := e.pub.PublishPartyFormed(pubCtx, ev); err != nil {
		logger.Errorf("[queue] party formed but publish failed party=%s content=%s: %v",
			partyID, contentID, err)
	} else {
		logger.Infof("[queue] party formed party=%s content=%s members=%d", partyID, contentID, len(members))
	}
	return JoinResult{Formed: true, PartyID: partyID, MemberUserIDs: members}
}

// Leave 出队。handle 不在队里按成功处理（幂等删除）；
// 删到空队列时整个 key 删掉，其余成员顺序保持不变。
func (e *Engine) Leave(ctx context.Context, contentID, handle string) error {
	for attempt := 0; attempt < e.conf.MaxCASRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errs.Wrap(ctx.Err())
			case <-time.After(e.conf.RetryBackoff):
			}
		}

		st, ver, err := e.store.Get(ctx, contentID)
		if err != nil {
			return err
		}
		idx := -1
		for i, m := range st.Members {
			if m.Handle == handle {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}

		st.Members = append(st.Members[:idx], st.Members[idx+1:]...)

		var ok bool
		if st.Size() == 0 {
			ok, err = e.store.CompareAndDelete(ctx, contentID, ver)
		} else {
			ok, err = e.store.CompareAndSwap(ctx, contentID, ver, st, e.conf.WaitTTL)
		}
		if err != nil {
			return err
		}
		if ok {
			logger.Debugf("[queue] left content=%s size=%d", contentID, st.Size())
			return nil
		}
	}
	return errs.ErrTransientConflict.WrapMsg("leave", "content_id", contentID)
}
