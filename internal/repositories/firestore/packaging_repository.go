package firestore

import (
	"context"
	"errors"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const packagingsCollection = "packagings"

// PackagingRepository looks up gift packaging options.
type PackagingRepository struct {
	packagings *pfirestore.BaseRepository[packagingDocument]
}

// NewPackagingRepository constructs a PackagingRepository bound to the provider.
func NewPackagingRepository(provider *pfirestore.Provider) (*PackagingRepository, error) {
	if provider == nil {
		return nil, errors.New("packaging repository requires firestore provider")
	}
	return &PackagingRepository{
		packagings: pfirestore.NewBaseRepository[packagingDocument](provider, packagingsCollection, nil, nil),
	}, nil
}

func (r *PackagingRepository) FindByID(ctx context.Context, packagingID string) (domain.Packaging, error) {
	doc, err := r.packagings.Get(ctx, packagingID)
	if err != nil {
		return domain.Packaging{}, err
	}
	return domain.Packaging{ID: doc.ID, Name: doc.Data.Name, Price: doc.Data.Price}, nil
}

type packagingDocument struct {
	Name  string `firestore:"name"`
	Price int64  `firestore:"price"`
}
