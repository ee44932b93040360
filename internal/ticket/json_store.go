package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// document is the on-disk shape of a JSONStore file.
type document struct {
	Tickets []*Ticket `json:"tickets"`
}

// JSONStore keeps every ticket in one JSON document, read and replaced
// whole on each operation.
type JSONStore struct {
	path string
	mu   sync.Mutex

	// Now is used for creation timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewJSONStore returns a store backed by the file at path. The file is
// created on first write.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, Now: time.Now}
}

// Path returns the backing file.
func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ticket store: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return &document{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing ticket store %s: %w", s.path, err)
	}
	return &doc, nil
}

func (s *JSONStore) save(doc *document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating ticket store directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ticket store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing ticket store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing ticket store: %w", err)
	}
	return nil
}

func (s *JSONStore) List(ctx context.Context) ([]*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Tickets, nil
}

func (s *JSONStore) Get(ctx context.Context, idOrName string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if t := find(doc.Tickets, idOrName); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
}

func (s *JSONStore) Create(ctx context.Context, id, description string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := newTicket(id, description, s.Now())
	if err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, existing := range doc.Tickets {
		if strings.EqualFold(existing.ID, t.ID) {
			return nil, fmt.Errorf("%w: %s", ErrExists, t.ID)
		}
	}
	doc.Tickets = append(doc.Tickets, t)
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (s *JSONStore) Update(ctx context.Context, id string, p Patch) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	t := findByID(doc.Tickets, id)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := p.Apply(t); err != nil {
		return nil, err
	}
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

func (s *JSONStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	for i, t := range doc.Tickets {
		if strings.EqualFold(t.ID, id) {
			doc.Tickets = append(doc.Tickets[:i], doc.Tickets[i+1:]...)
			return true, s.save(doc)
		}
	}
	return false, nil
}

// Close is a no-op; the document is written on every change.
func (s *JSONStore) Close() error {
	return nil
}

// find matches by id first so a ticket renamed to another's id cannot shadow it.
func find(tickets []*Ticket, idOrName string) *Ticket {
	if t := findByID(tickets, idOrName); t != nil {
		return t
	}
	for _, t := range tickets {
		if strings.EqualFold(t.Name, idOrName) {
			return t
		}
	}
	return nil
}

func findByID(tickets []*Ticket, id string) *Ticket {
	for _, t := range tickets {
		if strings.EqualFold(t.ID, id) {
			return t
		}
	}
	return nil
}
