package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"relay-chat/internal/models"
	"relay-chat/internal/store"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("not a group member")
	ErrInvalidGroup  = errors.New("group needs a name and at least one other member")
)

// GroupRegistry holds group metadata. Membership is fixed at creation.
// The id index is guarded by the store lock.
type GroupRegistry struct {
	store *store.Store
	byID  map[string]*models.Group
	now   func() time.Time
}

func NewGroupRegistry(s *store.Store) *GroupRegistry {
	r := &GroupRegistry{
		store: s,
		byID:  make(map[string]*models.Group),
		now:   time.Now,
	}
	s.View(func(doc *store.Document) {
		for _, g := range doc.GroupChats {
			r.byID[g.ID] = g
		}
	})
	return r
}

// Create stores a group whose members are the creator followed by
// memberIDs, with duplicates and blanks removed.
func (r *GroupRegistry) Create(creatorID, name string, memberIDs []string) (*models.GroupSummary, error) {
	name = strings.TrimSpace(name)
	members := []string{creatorID}
	seen := map[string]bool{creatorID: true}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if name == "" || creatorID == "" || len(members) < 2 {
		return nil, ErrInvalidGroup
	}

	g := &models.Group{
		GroupSummary: models.GroupSummary{
			ID:        "group_" + uuid.NewString(),
			Name:      name,
			CreatorID: creatorID,
			Members:   members,
			CreatedAt: models.Millis(r.now()),
		},
		Messages: []*models.GroupMessage{},
	}

	err := r.store.Update(func(doc *store.Document) error {
		doc.GroupChats = append(doc.GroupChats, g)
		r.byID[g.ID] = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g.Summary(), nil
}

func (r *GroupRegistry) Get(groupID string) (*models.GroupSummary, bool) {
	var found *models.GroupSummary
	r.store.View(func(*store.Document) {
		if g, ok := r.byID[groupID]; ok {
			found = g.Summary()
		}
	})
	return found, found != nil
}

// ListForUser returns the user's groups in creation order.
func (r *GroupRegistry) ListForUser(userID string) []*models.GroupSummary {
	groups := []*models.GroupSummary{}
	r.store.View(func(doc *store.Document) {
		for _, g := range doc.GroupChats {
			if g.HasMember(userID) {
				groups = append(groups, g.Summary())
			}
		}
	})
	return groups
}

// lookup must be called with the store lock held.
func (r *GroupRegistry) lookup(groupID string) (*models.Group, bool) {
	g, ok := r.byID[groupID]
	return g, ok
}
