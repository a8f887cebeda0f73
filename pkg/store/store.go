package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"librarycatalog/pkg/domain"
)

var (
	// ErrInvalidID indicates an identifier that is not a 24-character hex ObjectID.
	ErrInvalidID = errors.New("invalid id format")
	// ErrDuplicateISBN indicates an insert or update collided with the isbn unique index.
	ErrDuplicateISBN = errors.New("duplicate isbn")
	// ErrIncompleteBook indicates a book missing a field required at rest.
	ErrIncompleteBook = errors.New("book is missing required fields")
)

// BookStore defines persistence operations for catalog books.
// Lookups report "not found" through the bool result, never through an error.
type BookStore interface {
	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	GetBookByISBN(ctx context.Context, isbn string) (domain.Book, bool, error)
	UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (domain.Book, bool, error)
	DeleteBook(ctx context.Context, id string) (bool, error)
	SearchBooks(ctx context.Context, query string) ([]domain.Book, error)
	ListBooksByYear(ctx context.Context, year int) ([]domain.Book, error)
	ListBooksByAuthor(ctx context.Context, author string) ([]domain.Book, error)
	CountBooks(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// NewID returns a new ObjectID-shaped identifier. Every backend uses the same
// format so ids stay portable and sort roughly by creation time.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id is a structurally valid book identifier.
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// prepareNew fills store-assigned fields and enforces required-at-rest fields.
func prepareNew(b domain.Book) (domain.Book, error) {
	b.Title = strings.TrimSpace(b.Title)
	b.Author = strings.TrimSpace(b.Author)
	b.ISBN = strings.TrimSpace(b.ISBN)
	if err := checkAtRest(b); err != nil {
		return domain.Book{}, err
	}
	now := timestamp()
	b.ID = NewID()
	b.CreatedAt = now
	b.UpdatedAt = now
	return b, nil
}

func checkAtRest(b domain.Book) error {
	if b.Title == "" || b.Author == "" || b.ISBN == "" || b.Year == 0 {
		return ErrIncompleteBook
	}
	return nil
}

// timestamp returns the current UTC time at millisecond precision, the finest
// resolution every backend preserves.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
