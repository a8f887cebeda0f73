package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"librarycatalog/pkg/domain"
)

const migrateLockID int64 = 73217321

// GormStore implements BookStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
	// fold lowercases search input the way the database's LOWER() does.
	fold func(string) string
}

func newGormStore(db *gorm.DB) *GormStore {
	fold := strings.ToLower
	// SQLite's LOWER() folds ASCII letters only.
	if db.Dialector.Name() == "sqlite" {
		fold = asciiLower
	}
	return &GormStore{db: db, fold: fold}
}

// NewGormStore opens the Postgres database and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return newGormStore(db), nil
}

// NewGormStoreWithDialector opens any GORM dialector and migrates without locking.
// Used for SQLite in tests.
func NewGormStoreWithDialector(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return newGormStore(db), nil
}

func gormConfig() *gorm.Config {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return &gorm.Config{Logger: gormLog, TranslateError: true}
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(&BookModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateBook inserts a new book. A taken isbn yields ErrDuplicateISBN.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	b, err := prepareNew(b)
	if err != nil {
		return domain.Book{}, err
	}
	model := bookToModel(b)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Book{}, translateGormError(err)
	}
	return bookFromModel(model), nil
}

// ListBooks returns all books, newest first.
func (s *GormStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.listBooks(ctx)
}

// GetBook retrieves a book by ID.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	if !ValidID(id) {
		return domain.Book{}, false, ErrInvalidID
	}
	return s.first(ctx, "id = ?", id)
}

// GetBookByISBN looks up a book by exact isbn.
func (s *GormStore) GetBookByISBN(ctx context.Context, isbn string) (domain.Book, bool, error) {
	return s.first(ctx, "isbn = ?", isbn)
}

// UpdateBook applies the patch and bumps updated_at in one transaction.
func (s *GormStore) UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (domain.Book, bool, error) {
	if !ValidID(id) {
		return domain.Book{}, false, ErrInvalidID
	}
	var (
		updated domain.Book
		found   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model BookModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		next := patch.Apply(bookFromModel(model))
		next.UpdatedAt = timestamp()
		if err := checkAtRest(next); err != nil {
			return err
		}
		if err := tx.Model(&BookModel{}).Where("id = ?", id).Updates(map[string]any{
			"title":      next.Title,
			"author":     next.Author,
			"year":       next.Year,
			"isbn":       next.ISBN,
			"updated_at": next.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Book{}, false, translateGormError(err)
	}
	return updated, found, nil
}

// DeleteBook hard-deletes a book and reports whether a row was removed.
func (s *GormStore) DeleteBook(ctx context.Context, id string) (bool, error) {
	if !ValidID(id) {
		return false, ErrInvalidID
	}
	res := s.db.WithContext(ctx).Delete(&BookModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SearchBooks matches query as a case-insensitive substring of title, author or isbn.
func (s *GormStore) SearchBooks(ctx context.Context, query string) ([]domain.Book, error) {
	pattern := likePattern(s.fold(query))
	return s.listBooks(ctx,
		`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(isbn) LIKE ? ESCAPE '\'`,
		pattern, pattern, pattern)
}

// ListBooksByYear returns books published in year.
func (s *GormStore) ListBooksByYear(ctx context.Context, year int) ([]domain.Book, error) {
	return s.listBooks(ctx, "year = ?", year)
}

// ListBooksByAuthor matches author as a case-insensitive substring.
func (s *GormStore) ListBooksByAuthor(ctx context.Context, author string) ([]domain.Book, error) {
	return s.listBooks(ctx, `LOWER(author) LIKE ? ESCAPE '\'`, likePattern(s.fold(author)))
}

// CountBooks returns the number of books.
func (s *GormStore) CountBooks(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&BookModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) first(ctx context.Context, query string, args ...any) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

func (s *GormStore) listBooks(ctx context.Context, conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

func translateGormError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateISBN
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps an already folded string for a LIKE substring match.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Year:      b.Year,
		ISBN:      b.ISBN,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:        m.ID,
		Title:     m.Title,
		Author:    m.Author,
		Year:      m.Year,
		ISBN:      m.ISBN,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}
