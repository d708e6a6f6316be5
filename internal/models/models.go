package models

import (
	"sort"
	"strings"
	"time"
)

// ---------------------------------------------
// 🗄️ Persisted Models
// ---------------------------------------------

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"password"` // bcrypt hash, never sent to clients
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	CreatedAt int64  `json:"createdAt"`
	LastSeen  int64  `json:"lastSeen"`
}

// PublicUser is the client-facing projection of a User.
type PublicUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	CreatedAt int64  `json:"createdAt"`
	LastSeen  int64  `json:"lastSeen"`
	Online    bool   `json:"online,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		LastSeen:  u.LastSeen,
	}
}

const (
	TypePrivate = "private"
	TypeGroup   = "group"
)

type PrivateMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Read       bool   `json:"read"`
	Type       string `json:"type"`
}

type GroupMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	GroupID   string `json:"groupId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// GroupSummary is the group as clients see it, without the message log.
type GroupSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatorID string   `json:"creatorId"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

func (g *GroupSummary) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Group embeds its message log, matching the persisted document layout.
// Messages is always written as an array, even before the first message.
type Group struct {
	GroupSummary
	Messages []*GroupMessage `json:"messages"`
}

// Summary returns a copy of the group without its message log.
func (g *Group) Summary() *GroupSummary {
	s := g.GroupSummary
	s.Members = append([]string(nil), g.Members...)
	return &s
}

// ConversationKey addresses the private thread between two users.
// The pair is sorted, so ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// Millis converts t to the Unix millisecond timestamps used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
