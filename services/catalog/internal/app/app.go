package app

import (
	"context"
	"errors"
	"time"

	"librarycatalog/internal/metrics"
	"librarycatalog/internal/util"
	"librarycatalog/pkg/domain"
	"librarycatalog/pkg/store"
	"librarycatalog/pkg/validator"
)

// Config holds runtime dependencies for the catalog application.
type Config struct {
	Store store.BookStore
	// Now is the clock used for the year upper bound. Defaults to time.Now.
	Now func() time.Time
}

// App applies validation and the catalog's error policy on top of a BookStore.
// Read operations log backend failures and degrade to empty results; an
// invalid id and every write failure reach the caller.
type App struct {
	store store.BookStore
	now   func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("book store required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{store: cfg.Store, now: now}, nil
}

func (a *App) currentYear() int {
	return a.now().Year()
}

// CreateBook validates a full payload and persists it.
func (a *App) CreateBook(ctx context.Context, in domain.BookInput) (domain.Book, error) {
	v := validator.New()
	validator.ValidateBook(v, in, a.currentYear())
	if !v.Valid() {
		return domain.Book{}, v.Err()
	}
	b, err := a.store.CreateBook(ctx, in.Book())
	if err != nil {
		a.recordWriteError(ctx, "create", err)
		return domain.Book{}, err
	}
	return b, nil
}

// ListBooks returns every book, newest first.
func (a *App) ListBooks(ctx context.Context) []domain.Book {
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		a.downgrade(ctx, "list", err)
		return []domain.Book{}
	}
	return books
}

// GetBook fetches a book by id. Only store.ErrInvalidID is returned as an error.
func (a *App) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	b, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrInvalidID) {
			return domain.Book{}, false, err
		}
		a.downgrade(ctx, "get", err)
		return domain.Book{}, false, nil
	}
	return b, ok, nil
}

// ReplaceBook validates a full payload and overwrites every field of the book.
func (a *App) ReplaceBook(ctx context.Context, id string, in domain.BookInput) (domain.Book, bool, error) {
	v := validator.New()
	validator.ValidateBook(v, in, a.currentYear())
	if !v.Valid() {
		return domain.Book{}, false, v.Err()
	}
	return a.update(ctx, id, in.Patch())
}

// PatchBook validates the supplied fields and changes only those.
func (a *App) PatchBook(ctx context.Context, id string, in domain.BookInput) (domain.Book, bool, error) {
	v := validator.New()
	validator.ValidatePartialBook(v, in, a.currentYear())
	if !v.Valid() {
		return domain.Book{}, false, v.Err()
	}
	return a.update(ctx, id, in.Patch())
}

func (a *App) update(ctx context.Context, id string, patch domain.BookPatch) (domain.Book, bool, error) {
	b, ok, err := a.store.UpdateBook(ctx, id, patch)
	if err != nil {
		a.recordWriteError(ctx, "update", err)
		return domain.Book{}, false, err
	}
	return b, ok, nil
}

// DeleteBook removes a book and reports whether it existed.
func (a *App) DeleteBook(ctx context.Context, id string) (bool, error) {
	removed, err := a.store.DeleteBook(ctx, id)
	if err != nil {
		a.recordWriteError(ctx, "delete", err)
		return false, err
	}
	return removed, nil
}

// FindByISBN looks a book up by exact isbn.
func (a *App) FindByISBN(ctx context.Context, isbn string) (domain.Book, bool) {
	b, ok, err := a.store.GetBookByISBN(ctx, isbn)
	if err != nil {
		a.downgrade(ctx, "find_by_isbn", err)
		return domain.Book{}, false
	}
	return b, ok
}

// Search matches query against title, author and isbn.
func (a *App) Search(ctx context.Context, query string) []domain.Book {
	return a.list(ctx, "search", func() ([]domain.Book, error) {
		return a.store.SearchBooks(ctx, query)
	})
}

// FindByYear returns books published in year.
func (a *App) FindByYear(ctx context.Context, year int) []domain.Book {
	return a.list(ctx, "find_by_year", func() ([]domain.Book, error) {
		return a.store.ListBooksByYear(ctx, year)
	})
}

// FindByAuthor matches author as a case-insensitive substring.
func (a *App) FindByAuthor(ctx context.Context, author string) []domain.Book {
	return a.list(ctx, "find_by_author", func() ([]domain.Book, error) {
		return a.store.ListBooksByAuthor(ctx, author)
	})
}

// Count returns the number of books, or zero when the backend fails.
func (a *App) Count(ctx context.Context) int {
	n, err := a.store.CountBooks(ctx)
	if err != nil {
		a.downgrade(ctx, "count", err)
		return 0
	}
	return n
}

// Close releases the backend.
func (a *App) Close(ctx context.Context) error {
	return a.store.Close(ctx)
}

func (a *App) list(ctx context.Context, op string, fn func() ([]domain.Book, error)) []domain.Book {
	books, err := fn()
	if err != nil {
		a.downgrade(ctx, op, err)
		return []domain.Book{}
	}
	return books
}

func (a *App) downgrade(ctx context.Context, op string, err error) {
	metrics.RecordStoreError(op)
	util.LoggerFromContext(ctx).Error("store read failed", "op", op, "err", err)
}

// recordWriteError logs unexpected write failures. Caller mistakes such as a
// duplicate isbn or malformed id are not backend faults and stay quiet.
func (a *App) recordWriteError(ctx context.Context, op string, err error) {
	if errors.Is(err, store.ErrInvalidID) || errors.Is(err, store.ErrDuplicateISBN) || errors.Is(err, store.ErrIncompleteBook) {
		return
	}
	metrics.RecordStoreError(op)
	util.LoggerFromContext(ctx).Error("store write failed", "op", op, "err", err)
}
