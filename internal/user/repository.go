package user

import (
	"context"
	"strings"

	"relay-chat/internal/models"
	"relay-chat/internal/store"
)

// Repository is the account table inside the shared state document.
type Repository struct {
	store *store.Store
}

func NewRepository(s *store.Store) *Repository {
	return &Repository{store: s}
}

// CreateUser appends u, failing with ErrDuplicateEmail if the email is taken.
func (r *Repository) CreateUser(_ context.Context, u *models.User) error {
	return r.store.Update(func(doc *store.Document) error {
		for _, existing := range doc.Users {
			if existing.Email == u.Email {
				return ErrDuplicateEmail
			}
		}
		stored := *u
		doc.Users = append(doc.Users, &stored)
		return nil
	})
}

// GetUserByEmail returns a copy of the user, or ErrNotFound.
func (r *Repository) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	var found *models.User
	r.store.View(func(doc *store.Document) {
		for _, u := range doc.Users {
			if u.Email == email {
				c := *u
				found = &c
				return
			}
		}
	})
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (r *Repository) GetUserByID(id string) (*models.User, bool) {
	var found *models.User
	r.store.View(func(doc *store.Document) {
		for _, u := range doc.Users {
			if u.ID == id {
				c := *u
				found = &c
				return
			}
		}
	})
	return found, found != nil
}

// Touch sets lastSeen for the user. Unknown ids are ignored.
func (r *Repository) Touch(id string, lastSeen int64) error {
	return r.store.Update(func(doc *store.Document) error {
		for _, u := range doc.Users {
			if u.ID == id {
				u.LastSeen = lastSeen
				return nil
			}
		}
		return store.ErrUnchanged
	})
}

func (r *Repository) SearchUsers(_ context.Context, query string) []models.PublicUser {
	q := strings.ToLower(strings.TrimSpace(query))
	users := []models.PublicUser{}
	r.store.View(func(doc *store.Document) {
		for _, u := range doc.Users {
			// We limit to 10 to keep it fast
			if len(users) == 10 {
				return
			}
			if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
				users = append(users, u.Public())
			}
		}
	})
	return users
}
