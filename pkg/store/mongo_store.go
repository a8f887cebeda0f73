package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"librarycatalog/pkg/domain"
)

const booksCollection = "books"

// bookDocument is the BSON shape of a book in the books collection.
type bookDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Author    string             `bson:"author"`
	Year      int                `bson:"year"`
	ISBN      string             `bson:"isbn"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// MongoStore implements BookStore on a MongoDB collection with a unique isbn index.
type MongoStore struct {
	client *mongo.Client
	books  *mongo.Collection
}

// NewMongoStore connects, pings and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, errors.New("mongo uri required")
	}
	if strings.TrimSpace(database) == "" {
		database = "library"
	}
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10*time.Second).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{
		client: client,
		books:  client.Database(database).Collection(booksCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "isbn", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("isbn_unique"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("created_at_desc"),
		},
	})
	if err != nil {
		return fmt.Errorf("ensure book indexes: %w", err)
	}
	return nil
}

// CreateBook inserts a new document. A taken isbn yields ErrDuplicateISBN.
func (s *MongoStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	b, err := prepareNew(b)
	if err != nil {
		return domain.Book{}, err
	}
	doc, err := bookToDocument(b)
	if err != nil {
		return domain.Book{}, err
	}
	if _, err := s.books.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Book{}, ErrDuplicateISBN
		}
		return domain.Book{}, err
	}
	return b, nil
}

// ListBooks returns all books, newest first.
func (s *MongoStore) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.find(ctx, bson.D{})
}

// GetBook retrieves a book by ObjectID.
func (s *MongoStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Book{}, false, ErrInvalidID
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

// GetBookByISBN looks up a book by exact isbn.
func (s *MongoStore) GetBookByISBN(ctx context.Context, isbn string) (domain.Book, bool, error) {
	return s.findOne(ctx, bson.D{{Key: "isbn", Value: isbn}})
}

// UpdateBook applies the patch with $set and returns the updated document.
func (s *MongoStore) UpdateBook(ctx context.Context, id string, patch domain.BookPatch) (domain.Book, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Book{}, false, ErrInvalidID
	}
	set := bson.D{{Key: "updatedAt", Value: timestamp()}}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return domain.Book{}, false, ErrIncompleteBook
		}
		set = append(set, bson.E{Key: "title", Value: *patch.Title})
	}
	if patch.Author != nil {
		if strings.TrimSpace(*patch.Author) == "" {
			return domain.Book{}, false, ErrIncompleteBook
		}
		set = append(set, bson.E{Key: "author", Value: *patch.Author})
	}
	if patch.Year != nil {
		set = append(set, bson.E{Key: "year", Value: *patch.Year})
	}
	if patch.ISBN != nil {
		if strings.TrimSpace(*patch.ISBN) == "" {
			return domain.Book{}, false, ErrIncompleteBook
		}
		set = append(set, bson.E{Key: "isbn", Value: *patch.ISBN})
	}
	var doc bookDocument
	err = s.books.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Book{}, false, nil
		}
		if mongo.IsDuplicateKeyError(err) {
			return domain.Book{}, false, ErrDuplicateISBN
		}
		return domain.Book{}, false, err
	}
	return bookFromDocument(doc), true, nil
}

// DeleteBook removes a document and reports whether it existed.
func (s *MongoStore) DeleteBook(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, ErrInvalidID
	}
	res, err := s.books.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// SearchBooks matches query as a case-insensitive substring of title, author or isbn.
func (s *MongoStore) SearchBooks(ctx context.Context, query string) ([]domain.Book, error) {
	rx := substringRegex(query)
	return s.find(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "title", Value: rx}},
		bson.D{{Key: "author", Value: rx}},
		bson.D{{Key: "isbn", Value: rx}},
	}}})
}

// ListBooksByYear returns books published in year.
func (s *MongoStore) ListBooksByYear(ctx context.Context, year int) ([]domain.Book, error) {
	return s.find(ctx, bson.D{{Key: "year", Value: year}})
}

// ListBooksByAuthor matches author as a case-insensitive substring.
func (s *MongoStore) ListBooksByAuthor(ctx context.Context, author string) ([]domain.Book, error) {
	return s.find(ctx, bson.D{{Key: "author", Value: substringRegex(author)}})
}

// CountBooks returns the number of documents in the collection.
func (s *MongoStore) CountBooks(ctx context.Context) (int, error) {
	n, err := s.books.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (domain.Book, bool, error) {
	var doc bookDocument
	if err := s.books.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromDocument(doc), true, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.D) ([]domain.Book, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.books.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bookDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(docs))
	for _, d := range docs {
		res = append(res, bookFromDocument(d))
	}
	return res, nil
}

// substringRegex builds a case-insensitive regex matching s literally.
func substringRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func bookToDocument(b domain.Book) (bookDocument, error) {
	oid, err := primitive.ObjectIDFromHex(b.ID)
	if err != nil {
		return bookDocument{}, ErrInvalidID
	}
	return bookDocument{
		ID:        oid,
		Title:     b.Title,
		Author:    b.Author,
		Year:      b.Year,
		ISBN:      b.ISBN,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}, nil
}

func bookFromDocument(d bookDocument) domain.Book {
	return domain.Book{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Author:    d.Author,
		Year:      d.Year,
		ISBN:      d.ISBN,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
