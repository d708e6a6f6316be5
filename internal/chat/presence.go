package chat

// SessionPolicy decides what happens when a user attaches a second connection.
type SessionPolicy int

const (
	// SingleSession keeps one connection per user: the newest attach wins
	// and the previous connection is unbound and returned as evicted.
	SingleSession SessionPolicy = iota
)

func (p SessionPolicy) String() string {
	switch p {
	case SingleSession:
		return "single-session"
	default:
		return "unknown"
	}
}

// Presence maps connection ids to user ids and back. It is owned by the
// hub goroutine and is not safe for concurrent use.
type Presence struct {
	policy SessionPolicy
	byUser map[string]string // user id -> conn id
	byConn map[string]string // conn id -> user id
	order  []string          // user ids in attach order
}

func NewPresence(policy SessionPolicy) *Presence {
	return &Presence{
		policy: policy,
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

func (p *Presence) Policy() SessionPolicy {
	return p.policy
}

// Attach binds userID to connID and returns the connection it evicted, if
// any. A user that is already online keeps its roster position. A
// connection that was bound to another user is rebound.
func (p *Presence) Attach(userID, connID string) (evicted string) {
	if prevUser, ok := p.byConn[connID]; ok && prevUser != userID {
		p.Detach(connID)
	}

	prevConn, online := p.byUser[userID]
	if online && prevConn != connID {
		delete(p.byConn, prevConn)
		evicted = prevConn
	}
	if !online {
		p.order = append(p.order, userID)
	}

	p.byUser[userID] = connID
	p.byConn[connID] = userID
	return evicted
}

// Detach unbinds connID and returns the user that went offline.
func (p *Presence) Detach(connID string) (string, bool) {
	userID, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)
	delete(p.byUser, userID)
	for i, id := range p.order {
		if id == userID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return userID, true
}

func (p *Presence) IsOnline(userID string) bool {
	_, ok := p.byUser[userID]
	return ok
}

func (p *Presence) ConnOf(userID string) (string, bool) {
	connID, ok := p.byUser[userID]
	return connID, ok
}

func (p *Presence) UserOf(connID string) (string, bool) {
	userID, ok := p.byConn[connID]
	return userID, ok
}

// Snapshot lists online user ids in attach order.
func (p *Presence) Snapshot() []string {
	return append([]string(nil), p.order...)
}

func (p *Presence) Len() int {
	return len(p.order)
}
