package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/threadline/api/internal/domain"
	fsplatform "github.com/threadline/api/internal/platform/firestore"
	"github.com/threadline/api/internal/repositories"
)

const (
	usersCollection      = "users"
	userEmailsCollection = "userEmails"
)

type userDocument struct {
	Name         string    `firestore:"name"`
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"passwordHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

// emailClaimDocument reserves a normalised email address for one account.
// The document ID is derived from the address itself, so creating it is the
// atomic uniqueness check for registrations.
type emailClaimDocument struct {
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// UserRepository stores shopper accounts in the users collection, with an
// email-claim collection enforcing one account per address.
type UserRepository struct {
	base   *fsplatform.BaseRepository[userDocument]
	emails *fsplatform.BaseRepository[emailClaimDocument]
}

// NewUserRepository constructs a UserRepository bound to the provider.
func NewUserRepository(provider *fsplatform.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository: provider is required")
	}
	return &UserRepository{
		base:   fsplatform.NewBaseRepository[userDocument](provider, usersCollection, nil, nil),
		emails: fsplatform.NewBaseRepository[emailClaimDocument](provider, userEmailsCollection, nil, nil),
	}, nil
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// Insert creates the account. The email claim is written first with a
// create precondition, so two concurrent registrations for the same address
// race on one document ID and exactly one Insert succeeds; the loser gets a
// conflict. A pre-read duplicate check cannot close that window.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	claimID := claimDocID(user.Email)
	if _, err := r.emails.Create(ctx, claimID, emailClaimDocument{
		UserID:    user.ID,
		CreatedAt: user.CreatedAt,
	}); err != nil {
		return err
	}

	_, err := r.base.Create(ctx, user.ID, userDocument{
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	})
	if err != nil {
		// Release the claim so a failed insert does not burn the address.
		_ = r.emails.Delete(ctx, claimID)
		return err
	}
	return nil
}

// FindByID fetches a single user.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(doc.ID, doc.Data), nil
}

// FindByEmail resolves a user by the lowercased email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, fsplatform.NewNotFound("users.findbyemail", "email not registered")
	}
	return decodeUser(docs[0].ID, docs[0].Data), nil
}

// List returns every registered user ordered by signup time.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, decodeUser(doc.ID, doc.Data))
	}
	return users, nil
}

func decodeUser(id string, doc userDocument) domain.User {
	return domain.User{
		ID:           id,
		Name:         doc.Name,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}
}
