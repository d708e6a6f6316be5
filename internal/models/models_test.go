package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConversationKeyIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"user_a", "user_b"},
		{"user_b", "user_a"},
		{"user_1", "user_1"},
		{"", "user_x"},
	}
	for _, p := range pairs {
		if ConversationKey(p[0], p[1]) != ConversationKey(p[1], p[0]) {
			t.Errorf("key(%q,%q) != key(%q,%q)", p[0], p[1], p[1], p[0])
		}
	}

	if got := ConversationKey("user_b", "user_a"); got != "user_a:user_b" {
		t.Errorf("expected sorted key, got %q", got)
	}
}

func TestPublicDropsPassword(t *testing.T) {
	u := &User{ID: "user_1", Email: "a@x.com", Password: "$2a$hash", Name: "Alice", Avatar: "A"}
	p := u.Public()
	if p.ID != u.ID || p.Email != u.Email || p.Name != u.Name {
		t.Fatalf("public projection lost fields: %+v", p)
	}
	if p.Online {
		t.Error("public projection should not be online by default")
	}
}

func TestGroupSummaryOmitsMessages(t *testing.T) {
	g := &Group{
		GroupSummary: GroupSummary{ID: "group_1", Members: []string{"a", "b"}},
		Messages:     []*GroupMessage{{ID: "msg_1"}},
	}
	s := g.Summary()
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "messages") {
		t.Errorf("summary should not carry messages: %s", raw)
	}
	s.Members[0] = "z"
	if g.Members[0] != "a" {
		t.Error("summary must copy the member slice")
	}
	if !g.HasMember("b") || g.HasMember("c") {
		t.Error("HasMember returned wrong answer")
	}
}

func TestNewGroupPersistsEmptyMessageLog(t *testing.T) {
	g := &Group{
		GroupSummary: GroupSummary{ID: "group_1", Name: "Team", Members: []string{"a", "b"}},
		Messages:     []*GroupMessage{},
	}
	raw, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}
	var layout map[string]json.RawMessage
	if err := json.Unmarshal(raw, &layout); err != nil {
		t.Fatal(err)
	}
	if string(layout["messages"]) != "[]" {
		t.Errorf("expected an empty messages array, got %s", raw)
	}
	if string(layout["id"]) != `"group_1"` {
		t.Errorf("summary fields should be flattened into the group: %s", raw)
	}
}
