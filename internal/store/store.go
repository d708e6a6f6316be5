// Package store owns the chat state document and writes it through a
// Persister after every mutation.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"relay-chat/internal/models"
)

// ErrUnchanged may be returned from an Update callback to skip the write.
var ErrUnchanged = errors.New("store: nothing changed")

// Document is the whole persisted state. It is serialized as one JSON
// object and overwritten on every mutation.
type Document struct {
	Users           []*models.User           `json:"users"`
	PrivateMessages []*models.PrivateMessage `json:"privateMessages"`
	GroupChats      []*models.Group          `json:"groupChats"`
}

func NewDocument() *Document {
	return &Document{
		Users:           []*models.User{},
		PrivateMessages: []*models.PrivateMessage{},
		GroupChats:      []*models.Group{},
	}
}

// normalize replaces nil slices so the JSON always carries arrays.
func (d *Document) normalize() {
	if d.Users == nil {
		d.Users = []*models.User{}
	}
	if d.PrivateMessages == nil {
		d.PrivateMessages = []*models.PrivateMessage{}
	}
	if d.GroupChats == nil {
		d.GroupChats = []*models.Group{}
	}
	for _, g := range d.GroupChats {
		if g.Messages == nil {
			g.Messages = []*models.GroupMessage{}
		}
	}
}

// Persister loads and saves the Document. Load returns (nil, nil) when
// nothing has been saved yet.
type Persister interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Close() error
}

type Store struct {
	mu          sync.RWMutex
	doc         *Document
	persister   Persister
	saveTimeout time.Duration
}

// Open loads the document from p, starting empty if p has no state.
func Open(ctx context.Context, p Persister) (*Store, error) {
	doc, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if doc == nil {
		doc = NewDocument()
	}
	doc.normalize()

	return &Store{
		doc:         doc,
		persister:   p,
		saveTimeout: 5 * time.Second,
	}, nil
}

// View runs fn with shared access to the document. fn must not retain or
// mutate anything it reads.
func (s *Store) View(fn func(doc *Document)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.doc)
}

// Update runs fn with exclusive access and then persists the document.
// An error from fn (other than ErrUnchanged) is returned and nothing is
// written. A failed write is logged only: the in-memory state stays
// authoritative for the running process.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.doc); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.doc); err != nil {
		log.Printf("❌ Persist Error: %v", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.persister.Close()
}
