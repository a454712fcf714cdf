package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ink3-shop/api/internal/domain"
	pfirestore "github.com/ink3-shop/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository reads the user directory. Birthday month and day are stored
// denormalised so the birthday batch can query without range scans.
type UserRepository struct {
	users *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a UserRepository bound to the provider.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		users: pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil),
	}, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *UserRepository) ListWithBirthdayOn(ctx context.Context, month time.Month, day int) ([]domain.UserProfile, error) {
	docs, err := r.users.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.
			Where("birthMonth", "==", int(month)).
			Where("birthDay", "==", day)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.UserProfile, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.Data.toDomain(doc.ID))
	}
	return users, nil
}

type userDocument struct {
	Name       string     `firestore:"name"`
	Birthday   *time.Time `firestore:"birthday,omitempty"`
	BirthMonth int        `firestore:"birthMonth,omitempty"`
	BirthDay   int        `firestore:"birthDay,omitempty"`
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:       id,
		Name:     strings.TrimSpace(d.Name),
		Birthday: d.Birthday,
	}
}
