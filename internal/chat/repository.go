package chat

import (
	"time"

	"github.com/google/uuid"

	"relay-chat/internal/models"
	"relay-chat/internal/store"
)

// MessageStore is the append-only message log. Private messages are
// indexed by models.ConversationKey; the index is guarded by the store lock.
type MessageStore struct {
	store   *store.Store
	groups  *GroupRegistry
	threads map[string][]*models.PrivateMessage
	now     func() time.Time
}

func NewMessageStore(s *store.Store, groups *GroupRegistry) *MessageStore {
	m := &MessageStore{
		store:   s,
		groups:  groups,
		threads: make(map[string][]*models.PrivateMessage),
		now:     time.Now,
	}
	s.View(func(doc *store.Document) {
		for _, msg := range doc.PrivateMessages {
			key := models.ConversationKey(msg.SenderID, msg.ReceiverID)
			m.threads[key] = append(m.threads[key], msg)
		}
	})
	return m
}

func newMessageID() string {
	return "msg_" + uuid.NewString()
}

func (m *MessageStore) AppendPrivate(senderID, receiverID, text string) (*models.PrivateMessage, error) {
	msg := &models.PrivateMessage{
		ID:         newMessageID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Timestamp:  models.Millis(m.now()),
		Type:       models.TypePrivate,
	}

	err := m.store.Update(func(doc *store.Document) error {
		doc.PrivateMessages = append(doc.PrivateMessages, msg)
		key := models.ConversationKey(senderID, receiverID)
		m.threads[key] = append(m.threads[key], msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c := *msg
	return &c, nil
}

// GetPrivate returns the thread between a and b in insertion order.
func (m *MessageStore) GetPrivate(a, b string) []models.PrivateMessage {
	out := []models.PrivateMessage{}
	m.store.View(func(*store.Document) {
		for _, msg := range m.threads[models.ConversationKey(a, b)] {
			out = append(out, *msg)
		}
	})
	return out
}

// MarkRead flags every message otherID sent to userID as read and returns
// how many flags changed. Calling it again changes nothing.
func (m *MessageStore) MarkRead(userID, otherID string) (int, error) {
	changed := 0
	err := m.store.Update(func(*store.Document) error {
		for _, msg := range m.threads[models.ConversationKey(userID, otherID)] {
			if msg.ReceiverID == userID && msg.SenderID == otherID && !msg.Read {
				msg.Read = true
				changed++
			}
		}
		if changed == 0 {
			return store.ErrUnchanged
		}
		return nil
	})
	return changed, err
}

// AppendGroup appends to the group's log. The sender must be a member.
func (m *MessageStore) AppendGroup(senderID, groupID, text string) (*models.GroupMessage, error) {
	msg := &models.GroupMessage{
		ID:        newMessageID(),
		SenderID:  senderID,
		GroupID:   groupID,
		Text:      text,
		Timestamp: models.Millis(m.now()),
		Type:      models.TypeGroup,
	}

	err := m.store.Update(func(*store.Document) error {
		g, ok := m.groups.lookup(groupID)
		if !ok {
			return ErrGroupNotFound
		}
		if !g.HasMember(senderID) {
			return ErrNotMember
		}
		g.Messages = append(g.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c := *msg
	return &c, nil
}

func (m *MessageStore) GetGroup(groupID string) ([]models.GroupMessage, error) {
	var out []models.GroupMessage
	var err error
	m.store.View(func(*store.Document) {
		g, ok := m.groups.lookup(groupID)
		if !ok {
			err = ErrGroupNotFound
			return
		}
		out = make([]models.GroupMessage, 0, len(g.Messages))
		for _, msg := range g.Messages {
			out = append(out, *msg)
		}
	})
	return out, err
}
