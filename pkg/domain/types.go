package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Book is one catalog entry.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Year      int       `json:"year"`
	ISBN      string    `json:"isbn"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookInput is the decoded request body for create and update calls.
// A nil field was not supplied by the client.
type BookInput struct {
	Title  *string      `json:"title"`
	Author *string      `json:"author"`
	Year   *json.Number `json:"year"`
	ISBN   *string      `json:"isbn"`
}

// BookPatch carries the fields to change on an existing book. Nil fields are left untouched.
type BookPatch struct {
	Title  *string
	Author *string
	Year   *int
	ISBN   *string
}

// Empty reports whether the patch changes no field.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Year == nil && p.ISBN == nil
}

// Apply returns a copy of b with the patch fields applied.
func (p BookPatch) Apply(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Author != nil {
		b.Author = *p.Author
	}
	if p.Year != nil {
		b.Year = *p.Year
	}
	if p.ISBN != nil {
		b.ISBN = *p.ISBN
	}
	return b
}

// YearValue returns the integral year carried by the input. Integral spellings
// such as 2000.0 and 1e3 are accepted. ok is false when the year is absent,
// fractional or out of int range.
func (in BookInput) YearValue() (int, bool) {
	if in.Year == nil {
		return 0, false
	}
	if n, err := in.Year.Int64(); err == nil {
		return int(n), true
	}
	f, err := in.Year.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Book converts a fully validated input into a new, unsaved Book.
func (in BookInput) Book() Book {
	year, _ := in.YearValue()
	return Book{
		Title:  trimmed(in.Title),
		Author: trimmed(in.Author),
		Year:   year,
		ISBN:   trimmed(in.ISBN),
	}
}

// Patch converts the supplied input fields into a BookPatch, trimming strings.
func (in BookInput) Patch() BookPatch {
	var p BookPatch
	if in.Title != nil {
		v := strings.TrimSpace(*in.Title)
		p.Title = &v
	}
	if in.Author != nil {
		v := strings.TrimSpace(*in.Author)
		p.Author = &v
	}
	if year, ok := in.YearValue(); ok {
		p.Year = &year
	}
	if in.ISBN != nil {
		v := strings.TrimSpace(*in.ISBN)
		p.ISBN = &v
	}
	return p
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
