package party

import (
	"context"

	"WPProject/logger"
	"WPProject/service/broker"
)

// Manager 消费组队事件并维护 PartyRecord 档案。
// 事件可能重复投递，Create 按 party_id 幂等，直接重入即可。
type Manager struct {
	records RecordStore
}

func NewManager(records RecordStore) *Manager {
	return &Manager{records: records}
}

// OnPartyFormed broker 消费回调
func (m *Manager) OnPartyFormed(ev broker.PartyFormed) error {
	ctx := context.Background()
	rec := PartyRecord{
		PartyID:       ev.PartyID,
		ContentID:     ev.ContentID,
		MemberUserIDs: ev.MemberUserIDs,
	}
	if err := m.records.Create(ctx, rec); err != nil {
		return err
	}
	logger.Infof("[party] record created party=%s content=%s members=%d",
		ev.PartyID, ev.ContentID, len(ev.MemberUserIDs))
	return nil
}

func (m *Manager) FindByID(ctx context.Context, partyID string) (*PartyRecord, error) {
	return m.records.FindByID(ctx, partyID)
}

func (m *Manager) FindByMemberUserID(ctx context.Context, userID string) (*PartyRecord, error) {
	return m.records.FindByMemberUserID(ctx, userID)
}
