package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/transport-portal/internal/config"
	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/repository"
	apperrors "github.com/spec-kit/transport-portal/pkg/util/errorutil"
)

func newAuthService() *AuthService {
	return NewAuthService(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, BcryptCost: 4}, repository.NewInMemoryUsers())
}

func TestAuthService_SignupAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()

	res, err := svc.Signup(ctx, AccountInput{FirstName: "Ada", LastName: "K", Email: " Ada@Example.com ", Password: "pw123456"})
	require.NoError(t, err)
	assert.Equal(t, domain.RolePublic, res.User.Role)
	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.NotEmpty(t, res.Token)

	claims, err := svc.TokenManager().ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)

	login, err := svc.Login(ctx, "ADA@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "ada@example.com", "nope")
	assert.Equal(t, "UNAUTHORIZED", apperrors.ToDomainError(err).Code)

	_, err = svc.Login(ctx, "nobody@example.com", "pw123456")
	assert.Equal(t, "UNAUTHORIZED", apperrors.ToDomainError(err).Code)
}

func TestAuthService_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()

	_, err := svc.Signup(ctx, AccountInput{Email: "a@b.co", Password: "pw123456"})
	require.NoError(t, err)
	_, err = svc.Signup(ctx, AccountInput{Email: "A@b.co", Password: "pw123456"})
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "DUPLICATE_FIELD", domainErr.Code)
	assert.Equal(t, "email", domainErr.Details["field"])
}

func TestAuthService_CreateAdmin(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService()

	admin, err := svc.CreateAdmin(ctx, AccountInput{Email: "root@transport.gov", Password: "pw123456"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	me, err := svc.Me(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.Email, me.Email)

	_, err = svc.Me(ctx, "ghost")
	assert.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}
