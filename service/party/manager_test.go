package party

import (
	"context"
	"testing"

	"WPProject/service/broker"
)

func TestOnPartyFormedIdempotent(t *testing.T) {
	records := newFakeRecords()
	m := NewManager(records)

	ev := broker.PartyFormed{
		PartyID:       "p1",
		ContentID:     "film-42",
		MemberUserIDs: []string{"u1", "u2"},
	}
	if err := m.OnPartyFormed(ev); err != nil {
		t.Fatalf("OnPartyFormed: %v", err)
	}
	// at-least-once 投递，重复事件必须可重入
	if err := m.OnPartyFormed(ev); err != nil {
		t.Fatalf("redelivered OnPartyFormed: %v", err)
	}

	rec, err := m.FindByID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if rec == nil || rec.ContentID != "film-42" || len(rec.MemberUserIDs) != 2 {
		t.Fatalf("record = %+v", rec)
	}

	byUser, err := m.FindByMemberUserID(context.Background(), "u2")
	if err != nil {
		t.Fatalf("FindByMemberUserID: %v", err)
	}
	if byUser == nil || byUser.PartyID != "p1" {
		t.Fatalf("lookup by member = %+v", byUser)
	}

	missing, err := m.FindByID(context.Background(), "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing party: rec=%v err=%v", missing, err)
	}
}
