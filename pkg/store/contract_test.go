package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"librarycatalog/pkg/domain"
)

// runBookStoreSuite exercises the behavior every BookStore backend must share.
func runBookStoreSuite(t *testing.T, newStore func(t *testing.T) BookStore) {
	t.Helper()
	ctx := context.Background()

	sample := func(title, isbn string) domain.Book {
		return domain.Book{Title: title, Author: "Test Author", Year: 2024, ISBN: isbn}
	}

	t.Run("create then get round trip", func(t *testing.T) {
		s := newStore(t)
		created, err := s.CreateBook(ctx, sample("  Test Book  ", "1234567890"))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if !ValidID(created.ID) {
			t.Fatalf("expected generated object id, got %q", created.ID)
		}
		if created.Title != "Test Book" {
			t.Fatalf("expected trimmed title, got %q", created.Title)
		}
		if created.CreatedAt.IsZero() || !created.UpdatedAt.Equal(created.CreatedAt) {
			t.Fatalf("unexpected timestamps: %v %v", created.CreatedAt, created.UpdatedAt)
		}
		got, ok, err := s.GetBook(ctx, created.ID)
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if !sameBook(got, created) {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, created)
		}
	})

	t.Run("duplicate isbn rejected", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateBook(ctx, sample("First", "1234567890")); err != nil {
			t.Fatalf("create first: %v", err)
		}
		other := domain.Book{Title: "Other", Author: "Someone Else", Year: 1999, ISBN: "1234567890"}
		if _, err := s.CreateBook(ctx, other); !errors.Is(err, ErrDuplicateISBN) {
			t.Fatalf("expected ErrDuplicateISBN, got %v", err)
		}
		n, err := s.CountBooks(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 book after duplicate insert, got %d", n)
		}
	})

	t.Run("incomplete book rejected at rest", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.CreateBook(ctx, domain.Book{Title: " ", Author: "A", Year: 2000, ISBN: "1234567890"}); !errors.Is(err, ErrIncompleteBook) {
			t.Fatalf("expected ErrIncompleteBook, got %v", err)
		}
	})

	t.Run("list empty and newest first", func(t *testing.T) {
		s := newStore(t)
		books, err := s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("list empty: %v", err)
		}
		if books == nil || len(books) != 0 {
			t.Fatalf("expected empty non-nil slice, got %#v", books)
		}
		first, _ := s.CreateBook(ctx, sample("First", "1111111111"))
		time.Sleep(5 * time.Millisecond)
		second, _ := s.CreateBook(ctx, sample("Second", "2222222222"))
		books, err = s.ListBooks(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(books) != 2 || books[0].ID != second.ID || books[1].ID != first.ID {
			t.Fatalf("expected newest first, got %+v", books)
		}
	})

	t.Run("invalid id rejected regardless of contents", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"invalid-id", "", "123", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
			if _, _, err := s.GetBook(ctx, id); !errors.Is(err, ErrInvalidID) {
				t.Fatalf("get %q: expected ErrInvalidID, got %v", id, err)
			}
			if _, _, err := s.UpdateBook(ctx, id, domain.BookPatch{}); !errors.Is(err, ErrInvalidID) {
				t.Fatalf("update %q: expected ErrInvalidID, got %v", id, err)
			}
			if _, err := s.DeleteBook(ctx, id); !errors.Is(err, ErrInvalidID) {
				t.Fatalf("delete %q: expected ErrInvalidID, got %v", id, err)
			}
		}
	})

	t.Run("missing id is not found", func(t *testing.T) {
		s := newStore(t)
		id := NewID()
		if _, ok, err := s.GetBook(ctx, id); err != nil || ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if _, ok, err := s.UpdateBook(ctx, id, domain.BookPatch{}); err != nil || ok {
			t.Fatalf("update: ok=%v err=%v", ok, err)
		}
		if removed, err := s.DeleteBook(ctx, id); err != nil || removed {
			t.Fatalf("delete: removed=%v err=%v", removed, err)
		}
	})

	t.Run("partial update", func(t *testing.T) {
		s := newStore(t)
		created, _ := s.CreateBook(ctx, sample("Test Book", "1234567890"))
		time.Sleep(5 * time.Millisecond)

		unchanged, ok, err := s.UpdateBook(ctx, created.ID, domain.BookPatch{})
		if err != nil || !ok {
			t.Fatalf("empty update: ok=%v err=%v", ok, err)
		}
		if unchanged.Title != created.Title || unchanged.Author != created.Author ||
			unchanged.Year != created.Year || unchanged.ISBN != created.ISBN ||
			!unchanged.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("empty update changed fields: %+v", unchanged)
		}
		if !unchanged.UpdatedAt.After(created.UpdatedAt) {
			t.Fatalf("expected updatedAt to advance: %v -> %v", created.UpdatedAt, unchanged.UpdatedAt)
		}

		title := "Updated Title"
		updated, ok, err := s.UpdateBook(ctx, created.ID, domain.BookPatch{Title: &title})
		if err != nil || !ok {
			t.Fatalf("update title: ok=%v err=%v", ok, err)
		}
		if updated.Title != title || updated.Author != created.Author {
			t.Fatalf("unexpected update result: %+v", updated)
		}
		got, _, _ := s.GetBook(ctx, created.ID)
		if got.Title != title {
			t.Fatalf("update not persisted: %+v", got)
		}
	})

	t.Run("update to taken isbn rejected", func(t *testing.T) {
		s := newStore(t)
		_, _ = s.CreateBook(ctx, sample("First", "1111111111"))
		second, _ := s.CreateBook(ctx, sample("Second", "2222222222"))
		taken := "1111111111"
		if _, _, err := s.UpdateBook(ctx, second.ID, domain.BookPatch{ISBN: &taken}); !errors.Is(err, ErrDuplicateISBN) {
			t.Fatalf("expected ErrDuplicateISBN, got %v", err)
		}
		if _, ok, _ := s.GetBookByISBN(ctx, "2222222222"); !ok {
			t.Fatalf("second book isbn should be untouched")
		}
	})

	t.Run("delete then get", func(t *testing.T) {
		s := newStore(t)
		created, _ := s.CreateBook(ctx, sample("Test Book", "1234567890"))
		removed, err := s.DeleteBook(ctx, created.ID)
		if err != nil || !removed {
			t.Fatalf("delete: removed=%v err=%v", removed, err)
		}
		if _, ok, err := s.GetBook(ctx, created.ID); err != nil || ok {
			t.Fatalf("get after delete: ok=%v err=%v", ok, err)
		}
		removed, err = s.DeleteBook(ctx, created.ID)
		if err != nil || removed {
			t.Fatalf("second delete: removed=%v err=%v", removed, err)
		}
		if _, err := s.CreateBook(ctx, sample("Again", "1234567890")); err != nil {
			t.Fatalf("isbn should be free after delete: %v", err)
		}
	})

	t.Run("find by isbn", func(t *testing.T) {
		s := newStore(t)
		_, _ = s.CreateBook(ctx, sample("Test Book", "1234567890"))
		got, ok, err := s.GetBookByISBN(ctx, "1234567890")
		if err != nil || !ok || got.ISBN != "1234567890" {
			t.Fatalf("find by isbn: %+v ok=%v err=%v", got, ok, err)
		}
		if _, ok, err := s.GetBookByISBN(ctx, "9999999999"); err != nil || ok {
			t.Fatalf("missing isbn: ok=%v err=%v", ok, err)
		}
	})

	t.Run("search queries", func(t *testing.T) {
		s := newStore(t)
		_, _ = s.CreateBook(ctx, sample("Test Book", "1234567890"))
		_, _ = s.CreateBook(ctx, sample("Another Test Book", "0987654321"))
		_, _ = s.CreateBook(ctx, domain.Book{Title: "100% Go (2nd.)", Author: "Gopher", Year: 2001, ISBN: "1111111111111"})

		cases := []struct {
			query string
			want  int
		}{
			{"test", 2},
			{"AUTHOR", 2},
			{"1234567890", 1},
			{"NonExistent", 0},
			{"100%", 1},
			{"(2nd.)", 1},
			{"%", 1},
			{".*", 0},
		}
		for _, tc := range cases {
			books, err := s.SearchBooks(ctx, tc.query)
			if err != nil {
				t.Fatalf("search %q: %v", tc.query, err)
			}
			if len(books) != tc.want {
				t.Fatalf("search %q: got %d results, want %d", tc.query, len(books), tc.want)
			}
		}

		_, _ = s.CreateBook(ctx, nonASCIIBook())
		for _, q := range []string{"Études", "Émile"} {
			books, err := s.SearchBooks(ctx, q)
			if err != nil || len(books) != 1 {
				t.Fatalf("search %q: %d results, err %v", q, len(books), err)
			}
		}

		// A record matching on title, author and isbn appears once.
		_, _ = s.CreateBook(ctx, domain.Book{Title: "Echo 5555555555", Author: "echo", Year: 2010, ISBN: "5555555555"})
		books, err := s.SearchBooks(ctx, "5555555555")
		if err != nil {
			t.Fatalf("search multi-field: %v", err)
		}
		if len(books) != 1 {
			t.Fatalf("expected a single result for multi-field match, got %d", len(books))
		}
	})

	t.Run("year and author filters", func(t *testing.T) {
		s := newStore(t)
		_, _ = s.CreateBook(ctx, sample("Test Book", "1234567890"))
		_, _ = s.CreateBook(ctx, domain.Book{Title: "Old", Author: "Ancient Scribe", Year: 1200, ISBN: "0987654321"})

		byYear, err := s.ListBooksByYear(ctx, 2024)
		if err != nil || len(byYear) != 1 {
			t.Fatalf("by year: %d err=%v", len(byYear), err)
		}
		none, err := s.ListBooksByYear(ctx, 1999)
		if err != nil || none == nil || len(none) != 0 {
			t.Fatalf("by year none: %#v err=%v", none, err)
		}
		byAuthor, err := s.ListBooksByAuthor(ctx, "scribe")
		if err != nil || len(byAuthor) != 1 || byAuthor[0].Title != "Old" {
			t.Fatalf("by author: %+v err=%v", byAuthor, err)
		}
		n, err := s.CountBooks(ctx)
		if err != nil || n != 2 {
			t.Fatalf("count: %d err=%v", n, err)
		}
	})
}

func nonASCIIBook() domain.Book {
	return domain.Book{Title: "Études Françaises", Author: "Émile Zola", Year: 1880, ISBN: "2222222222"}
}

// runUnicodeFoldSuite checks case-insensitive matching beyond ASCII. Backends
// whose database folds ASCII only (SQLite) do not run it.
func runUnicodeFoldSuite(t *testing.T, newStore func(t *testing.T) BookStore) {
	t.Helper()
	ctx := context.Background()
	s := newStore(t)
	if _, err := s.CreateBook(ctx, nonASCIIBook()); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, q := range []string{"études", "ÉTUDES", "FRANÇAISES", "émile"} {
		books, err := s.SearchBooks(ctx, q)
		if err != nil || len(books) != 1 {
			t.Fatalf("search %q: %d results, err %v", q, len(books), err)
		}
	}
	books, err := s.ListBooksByAuthor(ctx, "ÉMILE")
	if err != nil || len(books) != 1 {
		t.Fatalf("author search: %d results, err %v", len(books), err)
	}
}

func sameBook(a, b domain.Book) bool {
	return a.ID == b.ID && a.Title == b.Title && a.Author == b.Author &&
		a.Year == b.Year && a.ISBN == b.ISBN &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt)
}
