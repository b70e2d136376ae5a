package party

import (
	"context"
	"time"

	errs "WPProject/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const partiesCollection = "parties"

type MongoRecordStore struct {
	coll *mongo.Collection
}

func NewMongoRecordStore(db *mongo.Database) *MongoRecordStore {
	return &MongoRecordStore{coll: db.Collection(partiesCollection)}
}

// EnsureIndexes party_id 唯一索引 + member 查询索引，启动时调用
func (s *MongoRecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "party_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "member_user_ids", Value: 1}},
		},
	})
	return errs.WrapMsg(err, "ensure indexes")
}

// Create $setOnInsert upsert：重复消费同一个组队事件不会改写已有档案
func (s *MongoRecordStore) Create(ctx context.Context, rec PartyRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Messages == nil {
		rec.Messages = []Message{}
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"party_id": rec.PartyID},
		bson.M{"$setOnInsert": rec},
		options.Update().SetUpsert(true),
	)
	return errs.WrapMsg(err, "create party", "party_id", rec.PartyID)
}

// AppendMessage 过滤条件带 msg_id $ne，重放同一条消息是 no-op
func (s *MongoRecordStore) AppendMessage(ctx context.Context, partyID string, msg Message) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{
			"party_id":        partyID,
			"messages.msg_id": bson.M{"$ne": msg.MsgID},
		},
		bson.M{"$push": bson.M{"messages": msg}},
	)
	return errs.WrapMsg(err, "append message", "party_id", partyID)
}

func (s *MongoRecordStore) FindByID(ctx context.Context, partyID string) (*PartyRecord, error) {
	var rec PartyRecord
	err := s.coll.FindOne(ctx, bson.M{"party_id": partyID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find party", "party_id", partyID)
	}
	return &rec, nil
}

func (s *MongoRecordStore) FindByMemberUserID(ctx context.Context, userID string) (*PartyRecord, error) {
	var rec PartyRecord
	err := s.coll.FindOne(ctx, bson.M{"member_user_ids": bson.M{"$in": []string{userID}}}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find party by member", "user_id", userID)
	}
	return &rec, nil
}
