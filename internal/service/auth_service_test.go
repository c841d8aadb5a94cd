package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/privacy-api/internal/models"
	appErrors "github.com/noah-isme/privacy-api/pkg/errors"
)

type authRepoStub struct {
	users      map[string]*models.User
	lastLogins []string
	logs       []*models.AuditLog
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogins = append(s.lastLogins, id)
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newAuthRepoStub(t *testing.T, password string, active bool) *authRepoStub {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &authRepoStub{users: map[string]*models.User{
		"op@example.org": {
			ID:           "user-1",
			Email:        "op@example.org",
			PasswordHash: string(hash),
			FullName:     "Operator One",
			Role:         models.RoleSystemManager,
			Active:       active,
		},
	}}
}

func authTestConfig() AuthConfig {
	return AuthConfig{AccessTokenSecret: "test-secret", AccessTokenExpiry: time.Hour, Issuer: "privacy-api"}
}

func TestAuthServiceLoginIssuesToken(t *testing.T) {
	repo := newAuthRepoStub(t, "hunter2", true)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "op@example.org", Password: "hunter2"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, models.RoleSystemManager, resp.User.Role)
	require.Equal(t, []string{"user-1"}, repo.lastLogins)
	require.Len(t, repo.logs, 1)
	require.Equal(t, models.AuditActionLogin, repo.logs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleSystemManager, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub(t, "hunter2", true)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "op@example.org", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	svc := NewAuthService(&authRepoStub{users: map[string]*models.User{}}, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.org", Password: "pw"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub(t, "hunter2", false)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "op@example.org", Password: "hunter2"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	repo := newAuthRepoStub(t, "hunter2", true)
	svc := NewAuthService(repo, nil, nil, authTestConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "op@example.org", Password: "hunter2"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "different", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
