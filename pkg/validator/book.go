package validator

import (
	"fmt"

	"librarycatalog/pkg/domain"
)

// MinYear is the earliest accepted publication year.
const MinYear = 1000

const (
	msgTitleRequired  = "Title is required"
	msgTitleEmpty     = "Title cannot be empty"
	msgAuthorRequired = "Author is required"
	msgAuthorEmpty    = "Author cannot be empty"
	msgISBN           = "ISBN must be 10 or 13 digits"
)

// YearMessage is the year range message for the given current year.
func YearMessage(currentYear int) string {
	return fmt.Sprintf("Year must be between %d and %d", MinYear, currentYear)
}

// ValidateBook checks a create or full-replace payload. Every field is required.
func ValidateBook(v *Validator, in domain.BookInput, currentYear int) {
	v.Check(in.Title != nil && NotBlank(*in.Title), msgTitleRequired)
	v.Check(in.Author != nil && NotBlank(*in.Author), msgAuthorRequired)
	year, ok := in.YearValue()
	v.Check(ok && Between(year, MinYear, currentYear), YearMessage(currentYear))
	v.Check(in.ISBN != nil && Matches(*in.ISBN, ISBNRX), msgISBN)
}

// ValidatePartialBook checks only the fields present in a partial update payload.
func ValidatePartialBook(v *Validator, in domain.BookInput, currentYear int) {
	if in.Title != nil {
		v.Check(NotBlank(*in.Title), msgTitleEmpty)
	}
	if in.Author != nil {
		v.Check(NotBlank(*in.Author), msgAuthorEmpty)
	}
	if in.Year != nil {
		year, ok := in.YearValue()
		v.Check(ok && Between(year, MinYear, currentYear), YearMessage(currentYear))
	}
	if in.ISBN != nil {
		v.Check(Matches(*in.ISBN, ISBNRX), msgISBN)
	}
}
