package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"relay-chat/internal/models"
)

// Accounts is what the hub needs from the account store.
type Accounts interface {
	Get(id string) (*models.User, bool)
	Touch(id string, t time.Time) error
}

// Hub is the router. Run owns every piece of connection state; each
// inbound event is persisted and fanned out before the next is read.
type Hub struct {
	clients    map[string]*Client // conn id -> client
	register   chan *Client
	unregister chan *Client
	inbound    chan *IncomingMessage
	done       chan struct{}

	accounts Accounts
	messages *MessageStore
	groups   *GroupRegistry
	presence *Presence
	now      func() time.Time
}

func NewHub(accounts Accounts, messages *MessageStore, groups *GroupRegistry) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *IncomingMessage),
		done:       make(chan struct{}),
		accounts:   accounts,
		messages:   messages,
		groups:     groups,
		presence:   NewPresence(SingleSession),
		now:        time.Now,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.disconnect(client)

		case in := <-h.inbound:
			h.dispatch(in.Client, in.Envelope)
		}
	}
}

// Register queues c for the hub. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Submit queues an inbound frame from c.
func (h *Hub) Submit(c *Client, env Envelope) bool {
	select {
	case h.inbound <- &IncomingMessage{Client: c, Envelope: env}:
		return true
	case <-h.done:
		return false
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.ID] = c
	log.Printf("🔌 New connection %s from %s. Total: %d", c.ID, c.Addr, len(h.clients))
}

// drop stops delivery to c. Its presence binding is cleared when its read
// pump reports the disconnect.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.Send)
	}
}

func (h *Hub) disconnect(c *Client) {
	h.drop(c)

	userID, ok := h.presence.Detach(c.ID)
	if !ok {
		return
	}
	c.UserID = ""
	if err := h.accounts.Touch(userID, h.now()); err != nil {
		log.Printf("❌ lastSeen update for %s: %v", userID, err)
	}
	log.Printf("👋 %s disconnected", userID)
	h.broadcastRoster()
}

func (h *Hub) shutdown() {
	log.Printf("Closing %d connections...", len(h.clients))
	for _, c := range h.clients {
		h.drop(c)
	}
}

// ---------------------------------------------
// 📤 Delivery
// ---------------------------------------------

func encode(event string, data interface{}) ([]byte, bool) {
	payload, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		log.Printf("❌ Encode %s: %v", event, err)
		return nil, false
	}
	return payload, true
}

func (h *Hub) deliver(c *Client, payload []byte) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Printf("Connection %s send buffer full; dropping it", c.ID)
		h.drop(c)
	}
}

func (h *Hub) emit(c *Client, event string, data interface{}) {
	if payload, ok := encode(event, data); ok {
		h.deliver(c, payload)
	}
}

// emitToUser pushes to the user's connection and reports whether the user
// was online.
func (h *Hub) emitToUser(userID, event string, data interface{}) bool {
	connID, ok := h.presence.ConnOf(userID)
	if !ok {
		return false
	}
	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	h.emit(c, event, data)
	return true
}

func (h *Hub) emitToMembers(members []string, event string, data interface{}) {
	payload, ok := encode(event, data)
	if !ok {
		return
	}
	for _, id := range members {
		connID, online := h.presence.ConnOf(id)
		if !online {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			h.deliver(c, payload)
		}
	}
}

func (h *Hub) broadcast(event string, data interface{}) {
	payload, ok := encode(event, data)
	if !ok {
		return
	}
	for _, c := range h.clients {
		h.deliver(c, payload)
	}
}

// Roster lists online users in attach order.
func (h *Hub) Roster() []models.PublicUser {
	roster := make([]models.PublicUser, 0, h.presence.Len())
	for _, id := range h.presence.Snapshot() {
		u, ok := h.accounts.Get(id)
		if !ok {
			continue
		}
		p := u.Public()
		p.Online = true
		roster = append(roster, p)
	}
	return roster
}

func (h *Hub) broadcastRoster() {
	h.broadcast(EventUsersUpdate, h.Roster())
}

// ---------------------------------------------
// 📥 Dispatch
// ---------------------------------------------

func (h *Hub) dispatch(c *Client, env Envelope) {
	// Dropped connections are waiting for their socket to close.
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	if env.Event == EventUserConnected {
		h.handleConnect(c, env.Data)
		return
	}
	if c.UserID == "" {
		log.Printf("Dropping %q from unauthenticated connection %s", env.Event, c.ID)
		return
	}

	switch env.Event {
	case EventSendPrivateMessage:
		h.handleSendPrivate(c, env.Data)
	case EventSendGroupMessage:
		h.handleSendGroup(c, env.Data)
	case EventCreateGroup:
		h.handleCreateGroup(c, env.Data)
	case EventGetPrivateMessages:
		h.handleGetPrivate(c, env.Data)
	case EventGetGroupMessages:
		h.handleGetGroup(c, env.Data)
	case EventGetMyGroups:
		h.emit(c, EventMyGroupsLoaded, h.groups.ListForUser(c.UserID))
	case EventMarkRead:
		h.handleMarkRead(c, env.Data)
	default:
		log.Printf("Unknown event %q from %s", env.Event, c.ID)
	}
}

func decode(c *Client, env string, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		log.Printf("Empty %q payload from %s", env, c.ID)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("Invalid %q payload from %s: %v", env, c.ID, err)
		return false
	}
	return true
}

func (h *Hub) handleConnect(c *Client, data json.RawMessage) {
	var p connectPayload
	if !decode(c, EventUserConnected, data, &p) {
		return
	}
	u, ok := h.accounts.Get(p.UserID)
	if !ok {
		log.Printf("Unknown user %q on %s", p.UserID, c.ID)
		return
	}

	if prev, ok := h.presence.UserOf(c.ID); ok && prev != u.ID {
		h.presence.Detach(c.ID)
		if err := h.accounts.Touch(prev, h.now()); err != nil {
			log.Printf("❌ lastSeen update for %s: %v", prev, err)
		}
		log.Printf("👋 %s switched to %s on %s", prev, u.ID, c.ID)
	}

	if evicted := h.presence.Attach(u.ID, c.ID); evicted != "" {
		if old, ok := h.clients[evicted]; ok {
			h.emit(old, EventSessionReplaced, sessionReplaced{UserID: u.ID})
			old.UserID = ""
			h.drop(old)
		}
		log.Printf("%s session moved from %s to %s (%s)", u.ID, evicted, c.ID, h.presence.Policy())
	}
	c.UserID = u.ID

	if err := h.accounts.Touch(u.ID, h.now()); err != nil {
		log.Printf("❌ lastSeen update for %s: %v", u.ID, err)
	}
	log.Printf("👤 %s connected", u.Name)
	h.broadcastRoster()
}

func (h *Hub) handleSendPrivate(c *Client, data json.RawMessage) {
	var p sendPrivatePayload
	if !decode(c, EventSendPrivateMessage, data, &p) {
		return
	}
	text, ok := cleanText(p.Text)
	if !ok {
		return
	}
	if _, ok := h.accounts.Get(p.ReceiverID); !ok {
		log.Printf("Dropping private message from %s to unknown user %q", c.UserID, p.ReceiverID)
		return
	}

	msg, err := h.messages.AppendPrivate(c.UserID, p.ReceiverID, text)
	if err != nil {
		log.Printf("❌ Store Error: %v", err)
		return
	}

	h.emit(c, EventMessageSent, msg)
	if p.ReceiverID != c.UserID {
		h.emitToUser(p.ReceiverID, EventNewPrivateMessage, msg)
	}
	log.Printf("💬 Message from %s to %s", msg.SenderID, msg.ReceiverID)
}

func (h *Hub) handleCreateGroup(c *Client, data json.RawMessage) {
	var p createGroupPayload
	if !decode(c, EventCreateGroup, data, &p) {
		return
	}

	members := make([]string, 0, len(p.MemberIDs))
	for _, id := range p.MemberIDs {
		if _, ok := h.accounts.Get(id); ok {
			members = append(members, id)
		}
	}

	g, err := h.groups.Create(c.UserID, p.GroupName, members)
	if err != nil {
		log.Printf("Dropping create-group from %s: %v", c.UserID, err)
		return
	}

	h.emitToMembers(g.Members, EventGroupCreated, g)
	log.Printf("👥 Group created: %s", g.Name)
}

func (h *Hub) handleSendGroup(c *Client, data json.RawMessage) {
	var p sendGroupPayload
	if !decode(c, EventSendGroupMessage, data, &p) {
		return
	}
	text, ok := cleanText(p.Text)
	if !ok {
		return
	}
	g, ok := h.groups.Get(p.GroupID)
	if !ok {
		log.Printf("Dropping group message from %s to unknown group %q", c.UserID, p.GroupID)
		return
	}

	msg, err := h.messages.AppendGroup(c.UserID, g.ID, text)
	if err != nil {
		log.Printf("Dropping group message from %s: %v", c.UserID, err)
		return
	}
	h.emitToMembers(g.Members, EventNewGroupMessage, msg)
}

func (h *Hub) handleGetPrivate(c *Client, data json.RawMessage) {
	var p otherUserPayload
	if !decode(c, EventGetPrivateMessages, data, &p) {
		return
	}
	h.emit(c, EventPrivateMessagesLoaded, privateMessagesLoaded{
		OtherUserID: p.OtherUserID,
		Messages:    h.messages.GetPrivate(c.UserID, p.OtherUserID),
	})
}

func (h *Hub) handleGetGroup(c *Client, data json.RawMessage) {
	var p groupPayload
	if !decode(c, EventGetGroupMessages, data, &p) {
		return
	}
	g, ok := h.groups.Get(p.GroupID)
	if !ok || !g.HasMember(c.UserID) {
		return
	}
	msgs, err := h.messages.GetGroup(g.ID)
	if err != nil {
		return
	}
	h.emit(c, EventGroupMessagesLoaded, groupMessagesLoaded{GroupID: g.ID, Messages: msgs})
}

func (h *Hub) handleMarkRead(c *Client, data json.RawMessage) {
	var p otherUserPayload
	if !decode(c, EventMarkRead, data, &p) {
		return
	}
	if _, err := h.messages.MarkRead(c.UserID, p.OtherUserID); err != nil {
		log.Printf("❌ Store Error: %v", err)
		return
	}
	h.emitToUser(p.OtherUserID, EventMessagesRead, messagesRead{UserID: c.UserID})
}
