package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"librarycatalog/pkg/domain"
)

// MemoryStore keeps books in-process. Suitable for tests and single-instance demos.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[string]domain.Book
	isbn   map[string]string // isbn -> book ID
	seq    map[string]uint64 // book ID -> insertion sequence
	nextSq uint64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[string]domain.Book),
		isbn:  make(map[string]string),
		seq:   make(map[string]uint64),
	}
}

// CreateBook stores a new book, rejecting a taken isbn.
func (m *MemoryStore) CreateBook(_ context.Context, b domain.Book) (domain.Book, error) {
	b, err := prepareNew(b)
	if err != nil {
		return domain.Book{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.isbn[b.ISBN]; taken {
		return domain.Book{}, ErrDuplicateISBN
	}
	m.nextSq++
	m.books[b.ID] = b
	m.isbn[b.ISBN] = b.ID
	m.seq[b.ID] = m.nextSq
	return b, nil
}

// ListBooks returns all books, newest first.
func (m *MemoryStore) ListBooks(_ context.Context) ([]domain.Book, error) {
	return m.filter(func(domain.Book) bool { return true }), nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	if !ValidID(id) {
		return domain.Book{}, false, ErrInvalidID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// GetBookByISBN looks up a book by exact isbn.
func (m *MemoryStore) GetBookByISBN(_ context.Context, isbn string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.isbn[isbn]
	if !ok {
		return domain.Book{}, false, nil
	}
	b, ok := m.books[id]
	return b, ok, nil
}

// UpdateBook applies the patch and bumps UpdatedAt.
func (m *MemoryStore) UpdateBook(_ context.Context, id string, patch domain.BookPatch) (domain.Book, bool, error) {
	if !ValidID(id) {
		return domain.Book{}, false, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	next := patch.Apply(current)
	if err := checkAtRest(next); err != nil {
		return domain.Book{}, false, err
	}
	if next.ISBN != current.ISBN {
		if owner, taken := m.isbn[next.ISBN]; taken && owner != id {
			return domain.Book{}, false, ErrDuplicateISBN
		}
		delete(m.isbn, current.ISBN)
		m.isbn[next.ISBN] = id
	}
	next.UpdatedAt = timestamp()
	m.books[id] = next
	return next, true, nil
}

// DeleteBook removes a book and reports whether it existed.
func (m *MemoryStore) DeleteBook(_ context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return false, nil
	}
	delete(m.books, id)
	delete(m.isbn, b.ISBN)
	delete(m.seq, id)
	return true, nil
}

// SearchBooks matches query as a case-insensitive substring of title, author or isbn.
func (m *MemoryStore) SearchBooks(_ context.Context, query string) ([]domain.Book, error) {
	q := strings.ToLower(query)
	return m.filter(func(b domain.Book) bool {
		return containsFold(b.Title, q) || containsFold(b.Author, q) || containsFold(b.ISBN, q)
	}), nil
}

// ListBooksByYear returns books published in year.
func (m *MemoryStore) ListBooksByYear(_ context.Context, year int) ([]domain.Book, error) {
	return m.filter(func(b domain.Book) bool { return b.Year == year }), nil
}

// ListBooksByAuthor matches author as a case-insensitive substring.
func (m *MemoryStore) ListBooksByAuthor(_ context.Context, author string) ([]domain.Book, error) {
	q := strings.ToLower(author)
	return m.filter(func(b domain.Book) bool { return containsFold(b.Author, q) }), nil
}

// CountBooks returns the number of books.
func (m *MemoryStore) CountBooks(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books), nil
}

// Close is a no-op.
func (m *MemoryStore) Close(_ context.Context) error {
	return nil
}

func (m *MemoryStore) filter(keep func(domain.Book) bool) []domain.Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		if keep(b) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return m.seq[res[i].ID] > m.seq[res[j].ID]
	})
	return res
}

func containsFold(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}
