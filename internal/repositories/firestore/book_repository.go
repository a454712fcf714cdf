package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const booksCollection = "books"

// BookRepository exposes the catalog slice the settlement workflow touches.
type BookRepository struct {
	books *pfirestore.BaseRepository[bookDocument]
}

// NewBookRepository constructs a BookRepository bound to the provider.
func NewBookRepository(provider *pfirestore.Provider) (*BookRepository, error) {
	if provider == nil {
		return nil, errors.New("book repository requires firestore provider")
	}
	return &BookRepository{
		books: pfirestore.NewBaseRepository[bookDocument](provider, booksCollection, nil, nil),
	}, nil
}

func (r *BookRepository) FindByID(ctx context.Context, bookID string) (domain.Book, error) {
	doc, err := r.books.Get(ctx, bookID)
	if err != nil {
		return domain.Book{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// IncrementQuantity applies a signed stock delta as a server-side field
// transform. It buffers no read, so callers inside a transaction may invoke
// it after other writes. Stock validation belongs to the caller, who reads
// the book in the same transaction before buffering the decrement.
func (r *BookRepository) IncrementQuantity(ctx context.Context, bookID string, delta int) error {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return errors.New("book increment: book id is required")
	}
	return r.books.UpdateFields(ctx, bookID, []firestore.Update{
		{Path: "quantity", Value: firestore.Increment(delta)},
	})
}

type bookDocument struct {
	Title    string `firestore:"title"`
	Quantity int    `firestore:"quantity"`
	Price    int64  `firestore:"price"`
}

func (d bookDocument) toDomain(id string) domain.Book {
	return domain.Book{
		ID:       id,
		Title:    d.Title,
		Quantity: d.Quantity,
		Price:    d.Price,
	}
}
