package credential

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/password"
)

// phonePattern matches an 11-digit mobile number starting with 1.
var phonePattern = regexp.MustCompile(`^1\d{10}$`)

type identifierKind int

const (
	kindUsername identifierKind = iota
	kindEmail
	kindPhone
)

type userStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
}

// Validator checks a login identifier and password against the user
// directory. Every failure path returns the same generic error so a caller
// cannot learn which field was wrong.
type Validator struct {
	users userStore
}

func NewValidator(users userStore) *Validator {
	return &Validator{users: users}
}

// Authenticate classifies the identifier as username, email or phone by
// pattern, fetches the user, and compares the password hash.
func (v *Validator) Authenticate(ctx context.Context, identifier, plaintext string) (*domain.User, error) {
	var u *domain.User
	var err error
	switch classify(identifier) {
	case kindEmail:
		u, err = v.users.FindByEmail(ctx, identifier)
	case kindPhone:
		u, err = v.users.FindByPhone(ctx, identifier)
	default:
		u, err = v.users.FindByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, authError()
	}
	if !u.Enable {
		return nil, authError()
	}
	if !password.Compare(plaintext, u.PasswordHash) {
		return nil, authError()
	}
	return u, nil
}

func classify(identifier string) identifierKind {
	if strings.Contains(identifier, "@") {
		return kindEmail
	}
	if phonePattern.MatchString(identifier) {
		return kindPhone
	}
	return kindUsername
}

func authError() error {
	return fmt.Errorf("incorrect username or password: %w", domain.ErrUnauthorized)
}
