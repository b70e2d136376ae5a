package party

import (
	"context"
	"time"
)

// Message 聊天记录里的一条。MsgID 雪花 ID，追加按它幂等。
type Message struct {
	MsgID  string    `bson:"msg_id" json:"msg_id"`
	Type   string    `bson:"type" json:"type"`
	UserID string    `bson:"user_id" json:"user_id"`
	Text   string    `bson:"text" json:"text"`
	SentAt time.Time `bson:"sent_at" json:"sent_at"`
}

// PartyRecord 组队成功后的持久档案。队列引擎在创建后不再改它，
// 之后只有消息追加。
type PartyRecord struct {
	PartyID       string    `bson:"party_id" json:"party_id"`
	ContentID     string    `bson:"content_id" json:"content_id"`
	MemberUserIDs []string  `bson:"member_user_ids" json:"member_user_ids"`
	Messages      []Message `bson:"messages" json:"messages"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// RecordStore 外部文档存储的契约。
// Create 按 party_id 幂等（事件是 at-least-once，消费端必须能重入）；
// AppendMessage 按 msg_id 幂等（崩溃后重放不产生重复消息）。
type RecordStore interface {
	Create(ctx context.Context, rec PartyRecord) error
	AppendMessage(ctx context.Context, partyID string, msg Message) error
	FindByID(ctx context.Context, partyID string) (*PartyRecord, error)
	FindByMemberUserID(ctx context.Context, userID string) (*PartyRecord, error)
}
