package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"librarycatalog/pkg/domain"
	"librarycatalog/pkg/store"
	"librarycatalog/pkg/validator"
)

const (
	msgIDRequired   = "Book ID is required"
	msgNotFound     = "Book not found"
	msgInvalidID    = "Invalid ID format"
	msgDuplicate    = "Duplicate ISBN"
	msgDeleted      = "Book deleted successfully"
	msgSearchParams = "Provide one of q, author or year"
)

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.app.ListBooks(r.Context()))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	b, found, err := s.app.GetBook(r.Context(), id)
	if err != nil {
		s.writeBookError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeData(w, http.StatusOK, b)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var in domain.BookInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.app.CreateBook(r.Context(), in)
	if err != nil {
		s.writeBookError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, b)
}

func (s *Server) handleReplaceBook(w http.ResponseWriter, r *http.Request) {
	s.handleUpdate(w, r, true)
}

func (s *Server) handlePatchBook(w http.ResponseWriter, r *http.Request) {
	s.handleUpdate(w, r, false)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, full bool) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	var in domain.BookInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var (
		b     domain.Book
		found bool
		err   error
	)
	if full {
		b, found, err = s.app.ReplaceBook(r.Context(), id, in)
	} else {
		b, found, err = s.app.PatchBook(r.Context(), id, in)
	}
	if err != nil {
		s.writeBookError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeData(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(w, r)
	if !ok {
		return
	}
	removed, err := s.app.DeleteBook(r.Context(), id)
	if err != nil {
		s.writeBookError(w, r, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msgDeleted})
}

func (s *Server) handleGetBookByISBN(w http.ResponseWriter, r *http.Request) {
	b, found := s.app.FindByISBN(r.Context(), strings.TrimSpace(chi.URLParam(r, "isbn")))
	if !found {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeData(w, http.StatusOK, b)
}

// handleSearchBooks serves ?q= (title, author or isbn), ?author= and ?year=.
// q wins over author, author over year.
func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	switch {
	case query.Has("q"):
		writeData(w, http.StatusOK, s.app.Search(r.Context(), query.Get("q")))
	case query.Has("author"):
		writeData(w, http.StatusOK, s.app.FindByAuthor(r.Context(), query.Get("author")))
	case query.Has("year"):
		year, err := strconv.Atoi(strings.TrimSpace(query.Get("year")))
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		writeData(w, http.StatusOK, s.app.FindByYear(r.Context(), year))
	default:
		writeError(w, http.StatusBadRequest, msgSearchParams)
	}
}

func (s *Server) handleCountBooks(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]int{"count": s.app.Count(r.Context())})
}

func bookID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, msgIDRequired)
		return "", false
	}
	return id, true
}

// writeBookError maps app and store errors onto the response envelope.
// A malformed id and a duplicate isbn answer 500 with a fixed message.
func (s *Server) writeBookError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Errors: verr.Errors})
	case errors.Is(err, store.ErrIncompleteBook):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusInternalServerError, msgInvalidID)
	case errors.Is(err, store.ErrDuplicateISBN):
		writeError(w, http.StatusInternalServerError, msgDuplicate)
	default:
		s.writeInternal(w, r, err)
	}
}
