package party

import (
	"testing"
)

func TestParseFrame(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(*Frame) bool
	}{
		{
			name: "play with time",
			raw:  `{"type":"play","time":12.5}`,
			check: func(f *Frame) bool {
				return f.Type == FramePlay && f.Time == 12.5 && f.IsControl()
			},
		},
		{
			name: "timeupdate not control",
			raw:  `{"type":"timeupdate","time":3}`,
			check: func(f *Frame) bool {
				return f.Type == FrameTimeUpdate && !f.IsControl()
			},
		},
		{
			name: "chat",
			raw:  `{"type":"chat","text":"hello"}`,
			check: func(f *Frame) bool {
				return f.Type == FrameChat && f.Text == "hello"
			},
		},
		{name: "missing type", raw: `{"time":5}`, wantErr: true},
		{name: "negative time", raw: `{"type":"seeked","time":-1}`, wantErr: true},
		{name: "empty chat", raw: `{"type":"chat"}`, wantErr: true},
		{name: "not json", raw: `play 5`, wantErr: true},
		{
			// 未知类型放过解析，由 HandleFrame 落到 default 分支忽略
			name: "unknown type",
			raw:  `{"type":"volumechange"}`,
			check: func(f *Frame) bool {
				return f.Type == "volumechange" && !f.IsControl()
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseFrame(%s) expected error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame(%s): %v", tc.raw, err)
			}
			if !tc.check(f) {
				t.Fatalf("ParseFrame(%s) = %+v", tc.raw, f)
			}
		})
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	f := BuildPartyFormed("party-1")
	got, err := ParseFrame(f.Marshal())
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if got.Type != FramePartyFormed || got.PartyID != "party-1" {
		t.Fatalf("roundtrip = %+v", got)
	}

	notice := buildNotice(FrameJoined, "m1", "u1")
	if notice.Text != "joined to the party!" {
		t.Fatalf("joined notice text = %q", notice.Text)
	}
	if left := buildNotice(FrameLeft, "m2", "u2"); left.Text != "left the party!" {
		t.Fatalf("left notice text = %q", left.Text)
	}
}
