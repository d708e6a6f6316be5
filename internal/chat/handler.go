package chat

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	myMiddleware "relay-chat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The UI is served from any origin in dev.
	},
}

// TokenValidator keeps this package decoupled from the user package.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, string, error)
}

type Handler struct {
	hub       *Hub
	validator TokenValidator
	messages  *MessageStore
	groups    *GroupRegistry
}

func NewHandler(hub *Hub, validator TokenValidator, messages *MessageStore, groups *GroupRegistry) *Handler {
	return &Handler{
		hub:       hub,
		validator: validator,
		messages:  messages,
		groups:    groups,
	}
}

// ServeWs upgrades the request. A valid token connects the user right
// away; without one the client must send user-connected itself.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	var userID string
	if token := myMiddleware.TokenFromRequest(r); token != "" {
		id, _, err := h.validator.ValidateToken(token)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := NewClient(h.hub, conn, r.RemoteAddr)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	if userID != "" {
		data, _ := json.Marshal(userID)
		h.hub.Submit(client, Envelope{Event: EventUserConnected, Data: data})
	}

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// GetChatHistory returns the caller's private thread with ?with=<userId>.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	other := r.URL.Query().Get("with")
	if other == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing with parameter"})
		return
	}
	writeJSON(w, http.StatusOK, h.messages.GetPrivate(userID, other))
}

// ListGroups returns the caller's groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, h.groups.ListForUser(userID))
}
