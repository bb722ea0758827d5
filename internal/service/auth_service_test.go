package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/identity"
	"github.com/gestaozabele/academico/internal/mail"
)

const (
	testAccessSecret  = "primary-secret-primary-secret-0123456789"
	testRefreshSecret = "refresh-secret-refresh-secret-0123456789"
)

type stubIdentityRepo struct {
	users map[string]*identity.Identity
}

func (s *stubIdentityRepo) GetByPublicID(ctx context.Context, publicID string) (*identity.Identity, error) {
	if u, ok := s.users[publicID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, identity.ErrNotFound
}

func (s *stubIdentityRepo) GetByID(ctx context.Context, id uuid.UUID) (*identity.Identity, error) {
	for _, u := range s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *stubIdentityRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, mustChange bool) error {
	for _, u := range s.users {
		if u.ID == id {
			u.PasswordHash = hash
			u.MustChangePassword = mustChange
			return nil
		}
	}
	return identity.ErrNotFound
}

type stubMailer struct {
	sent []mail.Message
	err  error
}

func (m *stubMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type authFixture struct {
	repo   *stubIdentityRepo
	mailer *stubMailer
	tokens *auth.TokenManager
	svc    *AuthService
	user   *identity.Identity
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := auth.Hash("senha-inicial")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := &identity.Identity{
		ID:                 uuid.New(),
		PublicID:           "STU-2024-001",
		Role:               identity.RoleStudent,
		PasswordHash:       hash,
		MustChangePassword: true,
		Profile: &identity.Profile{
			PublicID: "STU-2024-001",
			Name:     identity.Name{First: "Ana", Last: "Souza"},
			Email:    "ana@example.com",
		},
	}
	f := &authFixture{
		repo:   &stubIdentityRepo{users: map[string]*identity.Identity{user.PublicID: user}},
		mailer: &stubMailer{},
		tokens: auth.NewTokenManager(auth.TokenConfig{
			AccessSecret:  testAccessSecret,
			RefreshSecret: testRefreshSecret,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			RecoveryTTL:   50 * time.Minute,
		}),
		user: user,
	}
	f.svc = NewAuthService(f.repo, f.tokens, f.mailer, "https://app.test/reset-password?")
	return f
}

func TestLoginFirstTimeNeedsPasswordChange(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.Login(context.Background(), "STU-2024-001", "senha-inicial")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if !res.NeedsPasswordChange {
		t.Fatal("expected needsPasswordChange on first login")
	}

	claims, err := f.tokens.ParseAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if sub, _ := claims.SubjectID(); sub != f.user.ID || claims.Role != "student" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := f.tokens.ParseRefresh(res.RefreshToken); err != nil {
		t.Fatalf("refresh token must verify with refresh secret: %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.Login(context.Background(), "nao-existe", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "STU-2024-001", "errada"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestRefreshWithWrongSecretIsForbidden(t *testing.T) {
	f := newAuthFixture(t)
	forged := auth.NewTokenManager(auth.TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: strings.Repeat("z", 40),
		RefreshTTL:    time.Hour,
	})
	tok, _ := forged.IssueRefresh(f.user.ID, "student", f.user.PublicID)

	if _, err := f.svc.Refresh(context.Background(), tok); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	access, _ := f.tokens.IssueAccess(f.user.ID, "student", f.user.PublicID)
	if _, err := f.svc.Refresh(context.Background(), access); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("access token used as refresh must be Forbidden, got %v", err)
	}
}

func TestRefreshIssuesAccessTokenOnly(t *testing.T) {
	f := newAuthFixture(t)
	res, _ := f.svc.Login(context.Background(), "STU-2024-001", "senha-inicial")

	access, err := f.svc.Refresh(context.Background(), res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := f.tokens.ParseAccess(access); err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}

	delete(f.repo.users, f.user.PublicID)
	if _, err := f.svc.Refresh(context.Background(), res.RefreshToken); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected NotFound after deletion, got %v", err)
	}
}

func TestChangePasswordWrongOldKeepsHash(t *testing.T) {
	f := newAuthFixture(t)
	before := f.user.PasswordHash

	err := f.svc.ChangePassword(context.Background(), f.user.ID, "errada", "nova-senha")
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
	if f.user.PasswordHash != before || !f.user.MustChangePassword {
		t.Fatal("stored credential must be unchanged")
	}
}

func TestChangePasswordClearsFlag(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.svc.ChangePassword(context.Background(), f.user.ID, "senha-inicial", "nova-senha"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if f.user.MustChangePassword {
		t.Fatal("flag must be cleared")
	}
	if !auth.Verify("nova-senha", f.user.PasswordHash) {
		t.Fatal("new password must verify")
	}
}

func TestForgotPasswordMailsLink(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.svc.ForgotPassword(context.Background(), "STU-2024-001"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(f.mailer.sent))
	}
	msg := f.mailer.sent[0]
	if msg.To != "ana@example.com" || !strings.Contains(msg.HTML, "Ana") {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.HTML, "https://app.test/reset-password?id=STU-2024-001&amp;token=") {
		t.Fatalf("missing reset link: %s", msg.HTML)
	}
}

func TestForgotPasswordBadRequests(t *testing.T) {
	f := newAuthFixture(t)

	if err := f.svc.ForgotPassword(context.Background(), "nao-existe"); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected BadRequest for unknown id, got %v", err)
	}

	f.user.Profile.Email = ""
	if err := f.svc.ForgotPassword(context.Background(), "STU-2024-001"); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected BadRequest for missing email, got %v", err)
	}

	f.user.Profile = nil
	if err := f.svc.ForgotPassword(context.Background(), "STU-2024-001"); !errors.Is(err, apperr.ErrBadRequest) {
		t.Fatalf("expected BadRequest for missing profile, got %v", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatal("no mail expected")
	}
}

func TestResetPasswordWithValidToken(t *testing.T) {
	f := newAuthFixture(t)
	tok, _ := f.tokens.IssueRecovery("STU-2024-001")

	if err := f.svc.ResetPassword(context.Background(), "STU-2024-001", "redefinida", tok); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !auth.Verify("redefinida", f.user.PasswordHash) {
		t.Fatal("password not overwritten")
	}
}

func TestResetPasswordExpiredTokenKeepsHash(t *testing.T) {
	f := newAuthFixture(t)
	past := time.Now().Add(-2 * time.Hour)
	tok, _ := f.tokens.WithClock(func() time.Time { return past }).IssueRecovery("STU-2024-001")
	before := f.user.PasswordHash

	err := f.svc.ResetPassword(context.Background(), "STU-2024-001", "redefinida", tok)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if f.user.PasswordHash != before {
		t.Fatal("stored credential must be unchanged")
	}
}

func TestResetPasswordTokenForOtherIdentityIsForbidden(t *testing.T) {
	f := newAuthFixture(t)
	tok, _ := f.tokens.IssueRecovery("F-00001")

	if err := f.svc.ResetPassword(context.Background(), "STU-2024-001", "x", tok); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestChangePasswordHasherFailure(t *testing.T) {
	f := newAuthFixture(t)
	svc := NewAuthService(f.repo, f.tokens, f.mailer, "", WithPasswordHasher(func(string) (string, error) {
		return "", errors.New("boom")
	}))
	before := f.user.PasswordHash

	err := svc.ChangePassword(context.Background(), f.user.ID, "senha-inicial", "nova-senha")
	if !errors.Is(err, apperr.ErrStorageFailed) {
		t.Fatalf("expected StorageFailed, got %v", err)
	}
	if f.user.PasswordHash != before {
		t.Fatal("stored credential must be unchanged")
	}
}

func TestAuthorizeProfileAccess(t *testing.T) {
	student := &auth.Claims{Role: "student", PublicID: "240100001"}
	faculty := &auth.Claims{Role: "faculty", PublicID: "F-00001"}
	admin := &auth.Claims{Role: "admin", PublicID: "A-00001"}

	if err := AuthorizeProfileAccess(student, identity.RoleStudent, "240100001", true); err != nil {
		t.Fatalf("own profile: %v", err)
	}
	if err := AuthorizeProfileAccess(student, identity.RoleStudent, "240100002", false); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other student: %v", err)
	}
	if err := AuthorizeProfileAccess(faculty, identity.RoleStudent, "240100002", false); err != nil {
		t.Fatalf("faculty read: %v", err)
	}
	if err := AuthorizeProfileAccess(faculty, identity.RoleStudent, "240100002", true); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("faculty write: %v", err)
	}
	if err := AuthorizeProfileAccess(admin, identity.RoleFaculty, "F-00009", true); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if !CanProvision("admin", identity.RoleStudent) || CanProvision("faculty", identity.RoleStudent) {
		t.Fatal("unexpected provisioning policy")
	}
}
