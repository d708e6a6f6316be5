package chat

import (
	"encoding/json"
	"strings"
)

// ---------------------------------------------
// 📡 Wire Events
// ---------------------------------------------

// Client -> server.
const (
	EventUserConnected      = "user-connected"
	EventSendPrivateMessage = "send-private-message"
	EventSendGroupMessage   = "send-group-message"
	EventCreateGroup        = "create-group"
	EventGetPrivateMessages = "get-private-messages"
	EventGetGroupMessages   = "get-group-messages"
	EventGetMyGroups        = "get-my-groups"
	EventMarkRead           = "mark-read"
)

// Server -> client.
const (
	EventUsersUpdate           = "users-update"
	EventMessageSent           = "message-sent"
	EventNewPrivateMessage     = "new-private-message"
	EventNewGroupMessage       = "new-group-message"
	EventGroupCreated          = "group-created"
	EventPrivateMessagesLoaded = "private-messages-loaded"
	EventGroupMessagesLoaded   = "group-messages-loaded"
	EventMyGroupsLoaded        = "my-groups-loaded"
	EventMessagesRead          = "messages-read"
	EventSessionReplaced       = "session-replaced"
)

// Envelope is one websocket frame: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// IncomingMessage is an inbound frame queued for the hub goroutine.
type IncomingMessage struct {
	Client   *Client
	Envelope Envelope
}

// ---------------------------------------------
// 📥 Inbound Payloads
// ---------------------------------------------

// connectPayload accepts either a bare JSON string or {"userId": "..."}.
type connectPayload struct {
	UserID string `json:"userId"`
}

func (p *connectPayload) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		p.UserID = id
		return nil
	}
	type plain connectPayload
	return json.Unmarshal(data, (*plain)(p))
}

type sendPrivatePayload struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

type sendGroupPayload struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

type createGroupPayload struct {
	GroupName string   `json:"groupName"`
	MemberIDs []string `json:"memberIds"`
}

type otherUserPayload struct {
	OtherUserID string `json:"otherUserId"`
}

type groupPayload struct {
	GroupID string `json:"groupId"`
}

// ---------------------------------------------
// 📤 Outbound Payloads
// ---------------------------------------------

type privateMessagesLoaded struct {
	OtherUserID string      `json:"otherUserId"`
	Messages    interface{} `json:"messages"`
}

type groupMessagesLoaded struct {
	GroupID  string      `json:"groupId"`
	Messages interface{} `json:"messages"`
}

type messagesRead struct {
	UserID string `json:"userId"`
}

type sessionReplaced struct {
	UserID string `json:"userId"`
}

func cleanText(s string) (string, bool) {
	t := strings.TrimSpace(s)
	return t, t != ""
}
