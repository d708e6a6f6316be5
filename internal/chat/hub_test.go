package chat

import (
	"encoding/json"
	"testing"
	"time"

	"relay-chat/internal/models"
	"relay-chat/internal/store"
)

type fakeAccounts struct {
	users   map[string]*models.User
	touched map[string]int
}

func newFakeAccounts(ids ...string) *fakeAccounts {
	a := &fakeAccounts{users: map[string]*models.User{}, touched: map[string]int{}}
	for _, id := range ids {
		a.users[id] = &models.User{ID: id, Email: id + "@x.com", Name: id, Password: "hash"}
	}
	return a
}

func (a *fakeAccounts) Get(id string) (*models.User, bool) {
	u, ok := a.users[id]
	return u, ok
}

func (a *fakeAccounts) Touch(id string, t time.Time) error {
	a.touched[id]++
	if u, ok := a.users[id]; ok {
		u.LastSeen = t.UnixMilli()
	}
	return nil
}

type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T, ids ...string) (*Hub, *fakeAccounts) {
	t.Helper()
	_, messages, groups := newTestStores(t, store.Memory{})
	accounts := newFakeAccounts(ids...)
	return NewHub(accounts, messages, groups), accounts
}

// connect registers a websocket-less client the way Run would.
func connect(h *Hub) *Client {
	c := NewClient(h, nil, "pipe")
	h.addClient(c)
	return c
}

func send(t *testing.T, h *Hub, c *Client, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	h.dispatch(c, Envelope{Event: event, Data: raw})
}

func login(t *testing.T, h *Hub, userID string) *Client {
	t.Helper()
	c := connect(h)
	send(t, h, c, EventUserConnected, userID)
	return c
}

// drain returns every queued event for c.
func drain(t *testing.T, c *Client) []received {
	t.Helper()
	var out []received
	for {
		select {
		case payload, ok := <-c.Send:
			if !ok {
				return out
			}
			var r received
			if err := json.Unmarshal(payload, &r); err != nil {
				t.Fatalf("bad payload %s: %v", payload, err)
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

// expect drains c and decodes the last occurrence of event into v.
func expect(t *testing.T, c *Client, event string, v interface{}) {
	t.Helper()
	var found *received
	for _, r := range drain(t, c) {
		r := r
		if r.Event == event {
			found = &r
		}
	}
	if found == nil {
		t.Fatalf("expected %q event", event)
	}
	if v != nil {
		if err := json.Unmarshal(found.Data, v); err != nil {
			t.Fatalf("decode %q: %v", event, err)
		}
	}
}

func expectNone(t *testing.T, c *Client, event string) {
	t.Helper()
	for _, r := range drain(t, c) {
		if r.Event == event {
			t.Fatalf("unexpected %q event: %s", event, r.Data)
		}
	}
}

func TestConnectBroadcastsRoster(t *testing.T) {
	h, accounts := newTestHub(t, "a", "b")

	lurker := connect(h)
	a := login(t, h, "a")
	b := login(t, h, "b")

	var roster []models.PublicUser
	expect(t, lurker, EventUsersUpdate, &roster)
	if len(roster) != 2 || roster[0].ID != "a" || roster[1].ID != "b" || !roster[0].Online {
		t.Errorf("unexpected roster: %+v", roster)
	}
	expect(t, a, EventUsersUpdate, nil)
	expect(t, b, EventUsersUpdate, nil)

	raw, _ := json.Marshal(roster)
	var plain []map[string]interface{}
	json.Unmarshal(raw, &plain)
	if _, leaked := plain[0]["password"]; leaked {
		t.Error("roster leaks password hash")
	}
	if accounts.touched["a"] != 1 {
		t.Errorf("connect should update lastSeen once, got %d", accounts.touched["a"])
	}
}

func TestConnectAcceptsObjectPayloadAndRejectsUnknownUser(t *testing.T) {
	h, _ := newTestHub(t, "a")

	c := connect(h)
	send(t, h, c, EventUserConnected, map[string]string{"userId": "a"})
	if c.UserID != "a" {
		t.Fatalf("object payload not accepted, UserID=%q", c.UserID)
	}

	ghost := connect(h)
	send(t, h, ghost, EventUserConnected, "nobody")
	if ghost.UserID != "" || h.presence.IsOnline("nobody") {
		t.Error("unknown user must not be attached")
	}
}

func TestRosterAfterNConnectsAndOneDisconnect(t *testing.T) {
	ids := []string{"u1", "u2", "u3", "u4"}
	h, accounts := newTestHub(t, ids...)

	var clients []*Client
	for _, id := range ids {
		clients = append(clients, login(t, h, id))
	}
	observer := clients[0]
	drain(t, observer)

	h.disconnect(clients[2])

	var roster []models.PublicUser
	expect(t, observer, EventUsersUpdate, &roster)
	if len(roster) != len(ids)-1 {
		t.Fatalf("expected %d entries, got %d", len(ids)-1, len(roster))
	}
	for _, u := range roster {
		if u.ID == "u3" {
			t.Error("disconnected user still in roster")
		}
	}
	if accounts.touched["u3"] != 2 {
		t.Errorf("disconnect should update lastSeen, touched=%d", accounts.touched["u3"])
	}
	drain(t, clients[2])
	if _, open := <-clients[2].Send; open {
		t.Error("disconnected client's send channel should be closed")
	}
}

func TestEventsBeforeConnectAreDropped(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	b := login(t, h, "b")
	drain(t, b)

	anon := connect(h)
	send(t, h, anon, EventSendPrivateMessage, map[string]string{"receiverId": "b", "text": "hi"})

	expectNone(t, b, EventNewPrivateMessage)
	if got := h.messages.GetPrivate("a", "b"); len(got) != 0 {
		t.Errorf("unauthenticated send was stored: %+v", got)
	}
	if len(drain(t, anon)) != 0 {
		t.Error("unauthenticated sender should get no reply")
	}
}

func TestPrivateMessageReadReceiptScenario(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	a := login(t, h, "a")
	b := login(t, h, "b")
	drain(t, a)
	drain(t, b)

	send(t, h, a, EventSendPrivateMessage, map[string]string{"senderId": "spoofed", "receiverId": "b", "text": "hi"})

	var ack models.PrivateMessage
	expect(t, a, EventMessageSent, &ack)
	var pushed models.PrivateMessage
	expect(t, b, EventNewPrivateMessage, &pushed)
	if pushed.Text != "hi" || pushed.SenderID != "a" || pushed.ID != ack.ID {
		t.Errorf("unexpected push: %+v (ack %+v)", pushed, ack)
	}

	send(t, h, b, EventMarkRead, map[string]string{"otherUserId": "a"})
	var receipt messagesRead
	expect(t, a, EventMessagesRead, &receipt)
	if receipt.UserID != "b" {
		t.Errorf("receipt names %q, want b", receipt.UserID)
	}

	send(t, h, a, EventGetPrivateMessages, map[string]string{"otherUserId": "b"})
	var history struct {
		OtherUserID string                  `json:"otherUserId"`
		Messages    []models.PrivateMessage `json:"messages"`
	}
	expect(t, a, EventPrivateMessagesLoaded, &history)
	if len(history.Messages) != 1 || !history.Messages[0].Read || history.Messages[0].Text != "hi" {
		t.Errorf("unexpected history: %+v", history)
	}
	expectNone(t, b, EventPrivateMessagesLoaded)
}

func TestPrivateMessageToOfflineUserIsKeptForHistory(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	a := login(t, h, "a")

	send(t, h, a, EventSendPrivateMessage, map[string]string{"receiverId": "b", "text": "later"})
	expect(t, a, EventMessageSent, nil)

	b := login(t, h, "b")
	drain(t, b)
	send(t, h, b, EventGetPrivateMessages, map[string]string{"otherUserId": "a"})
	var history privateMessagesLoadedForTest
	expect(t, b, EventPrivateMessagesLoaded, &history)
	if len(history.Messages) != 1 || history.Messages[0].Text != "later" {
		t.Errorf("offline message not retrievable: %+v", history)
	}
}

type privateMessagesLoadedForTest struct {
	Messages []models.PrivateMessage `json:"messages"`
}

func TestPrivateMessageToUnknownReceiverIsDropped(t *testing.T) {
	h, _ := newTestHub(t, "a")
	a := login(t, h, "a")
	drain(t, a)

	send(t, h, a, EventSendPrivateMessage, map[string]string{"receiverId": "ghost", "text": "hello?"})

	expectNone(t, a, EventMessageSent)
	if got := h.messages.GetPrivate("a", "ghost"); len(got) != 0 {
		t.Errorf("message to unknown receiver was stored: %+v", got)
	}
}

func TestGroupScenario(t *testing.T) {
	h, _ := newTestHub(t, "a", "b", "c")
	a := login(t, h, "a")
	b := login(t, h, "b")
	c := login(t, h, "c")
	drain(t, a)
	drain(t, b)
	drain(t, c)

	send(t, h, a, EventCreateGroup, map[string]interface{}{"groupName": "team", "memberIds": []string{"b", "ghost"}})

	var created models.GroupSummary
	expect(t, b, EventGroupCreated, &created)
	expect(t, a, EventGroupCreated, nil)
	expectNone(t, c, EventGroupCreated)
	if created.Name != "team" || len(created.Members) != 2 {
		t.Fatalf("unexpected group: %+v", created)
	}

	send(t, h, a, EventSendGroupMessage, map[string]string{"groupId": created.ID, "text": "yo"})
	var msg models.GroupMessage
	expect(t, b, EventNewGroupMessage, &msg)
	if msg.Text != "yo" || msg.SenderID != "a" || msg.GroupID != created.ID {
		t.Errorf("unexpected group message: %+v", msg)
	}
	expect(t, a, EventNewGroupMessage, nil)
	expectNone(t, c, EventNewGroupMessage)

	send(t, h, b, EventGetGroupMessages, map[string]string{"groupId": created.ID})
	var history struct {
		GroupID  string                `json:"groupId"`
		Messages []models.GroupMessage `json:"messages"`
	}
	expect(t, b, EventGroupMessagesLoaded, &history)
	if history.GroupID != created.ID || len(history.Messages) != 1 {
		t.Errorf("unexpected group history: %+v", history)
	}

	send(t, h, b, EventGetMyGroups, nil)
	var mine []models.GroupSummary
	expect(t, b, EventMyGroupsLoaded, &mine)
	if len(mine) != 1 || mine[0].ID != created.ID {
		t.Errorf("unexpected groups for b: %+v", mine)
	}
}

func TestGroupEventsFromOutsidersAreDropped(t *testing.T) {
	h, _ := newTestHub(t, "a", "b", "c")
	a := login(t, h, "a")
	b := login(t, h, "b")
	c := login(t, h, "c")

	send(t, h, a, EventCreateGroup, map[string]interface{}{"groupName": "team", "memberIds": []string{"b"}})
	var created models.GroupSummary
	expect(t, a, EventGroupCreated, &created)
	drain(t, b)
	drain(t, c)

	send(t, h, c, EventSendGroupMessage, map[string]string{"groupId": created.ID, "text": "let me in"})
	send(t, h, c, EventSendGroupMessage, map[string]string{"groupId": "group_missing", "text": "hello"})
	send(t, h, c, EventGetGroupMessages, map[string]string{"groupId": created.ID})
	send(t, h, a, EventCreateGroup, map[string]interface{}{"groupName": "lonely", "memberIds": []string{"ghost"}})

	expectNone(t, b, EventNewGroupMessage)
	expectNone(t, c, EventGroupMessagesLoaded)
	expectNone(t, a, EventGroupCreated)
	if log, _ := h.messages.GetGroup(created.ID); len(log) != 0 {
		t.Errorf("outsider message stored: %+v", log)
	}
}

func TestSecondLoginReplacesSession(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	first := login(t, h, "a")
	b := login(t, h, "b")
	drain(t, first)
	drain(t, b)

	second := login(t, h, "a")

	var replaced sessionReplaced
	expect(t, first, EventSessionReplaced, &replaced)
	if replaced.UserID != "a" {
		t.Errorf("session-replaced names %q", replaced.UserID)
	}
	if _, open := <-first.Send; open {
		t.Error("evicted connection should be closed")
	}

	var roster []models.PublicUser
	expect(t, b, EventUsersUpdate, &roster)
	if len(roster) != 2 {
		t.Errorf("expected 2 online after re-login, got %d", len(roster))
	}

	// The old socket closing later must not take a offline.
	h.disconnect(first)
	if !h.presence.IsOnline("a") {
		t.Fatal("a went offline when the evicted socket closed")
	}
	expectNone(t, b, EventUsersUpdate)

	send(t, h, b, EventSendPrivateMessage, map[string]string{"receiverId": "a", "text": "ping"})
	expect(t, second, EventNewPrivateMessage, nil)
}

func TestEvictedConnectionCannotReclaimSession(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	first := login(t, h, "a")
	b := login(t, h, "b")
	second := login(t, h, "a")
	drain(t, first)
	drain(t, second)
	drain(t, b)

	send(t, h, first, EventUserConnected, "a")

	connID, ok := h.presence.ConnOf("a")
	if !ok || connID != second.ID {
		t.Fatalf("a should stay bound to %s, got %q", second.ID, connID)
	}
	if _, live := h.clients[second.ID]; !live {
		t.Fatal("live session was dropped by the evicted connection")
	}
	expectNone(t, second, EventSessionReplaced)
	expectNone(t, b, EventUsersUpdate)

	send(t, h, b, EventSendPrivateMessage, map[string]string{"receiverId": "a", "text": "still here"})
	expect(t, second, EventNewPrivateMessage, nil)
}

func TestDroppedSlowConsumerIgnoresEvents(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	a := login(t, h, "a")
	b := login(t, h, "b")
	h.drop(b)

	send(t, h, b, EventSendPrivateMessage, map[string]string{"receiverId": "a", "text": "late"})
	if got := len(h.messages.GetPrivate("a", "b")); got != 0 {
		t.Errorf("dropped connection stored %d messages", got)
	}
	expectNone(t, a, EventNewPrivateMessage)
}

func TestSwitchingUserOnConnectionDetachesPrevious(t *testing.T) {
	h, accounts := newTestHub(t, "a", "b")
	c := login(t, h, "a")
	if accounts.touched["a"] != 1 {
		t.Fatalf("expected one lastSeen update on connect, got %d", accounts.touched["a"])
	}

	send(t, h, c, EventUserConnected, "b")

	if h.presence.IsOnline("a") {
		t.Error("a should be offline after its connection switched users")
	}
	if accounts.touched["a"] != 2 {
		t.Errorf("expected lastSeen update for a on detach, got %d updates", accounts.touched["a"])
	}
	if connID, _ := h.presence.ConnOf("b"); connID != c.ID {
		t.Errorf("b should be bound to %s, got %q", c.ID, connID)
	}

	var roster []models.PublicUser
	expect(t, c, EventUsersUpdate, &roster)
	if len(roster) != 1 || roster[0].ID != "b" {
		t.Errorf("expected roster [b], got %+v", roster)
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h, _ := newTestHub(t, "a", "b")
	a := login(t, h, "a")
	b := login(t, h, "b")

	for i := 0; i < sendBuffer+1; i++ {
		send(t, h, a, EventSendPrivateMessage, map[string]string{"receiverId": "b", "text": "flood"})
	}
	if _, ok := h.clients[b.ID]; ok {
		t.Error("client with a full buffer should be dropped")
	}
	if !h.presence.IsOnline("b") {
		t.Error("presence is cleared only when the socket reports the disconnect")
	}
	if got := len(h.messages.GetPrivate("a", "b")); got != sendBuffer+1 {
		t.Errorf("all messages should be persisted, got %d", got)
	}
}
