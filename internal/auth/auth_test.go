package auth_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/internal/database"
	"github.com/ksred/tradejournal/internal/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time            { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "journal_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newService(t *testing.T) (*auth.Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := auth.NewService(openDB(t), auth.Options{
		JWTSecret:  "test-secret",
		SessionTTL: time.Hour,
		TokenTTL:   time.Hour,
		HashCost:   bcrypt.MinCost,
		Now:        clock.Now,
	})
	return svc, clock
}

func alice() auth.Registration {
	return auth.Registration{
		Username:        "alice",
		Email:           "a@x.com",
		Password:        "Secret123",
		ConfirmPassword: "Secret123",
	}
}

func TestRegister_SucceedsOnceThenRejectsDuplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, alice())
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, user.OrgID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, auth.RoleAnalyst, user.Role)

	_, err = svc.Register(ctx, alice())
	assert.ErrorIs(t, err, auth.ErrDuplicateUsername)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	svc, _ := newService(t)

	reg := alice()
	reg.ConfirmPassword = "Secret124"
	_, err := svc.Register(context.Background(), reg)

	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs["confirm_password"], "Passwords do not match.")
}

func TestRegister_FieldValidation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Register(context.Background(), auth.Registration{Email: "not-an-email"})

	var verrs types.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "username")
	assert.Contains(t, verrs, "email")
	assert.Contains(t, verrs, "password")
}

func TestRegister_WeakCredential(t *testing.T) {
	svc, _ := newService(t)

	for _, pw := range []string{"short1", "onlyletters", "1234567890"} {
		reg := alice()
		reg.Password, reg.ConfirmPassword = pw, pw
		_, err := svc.Register(context.Background(), reg)
		assert.ErrorIs(t, err, auth.ErrWeakCredential, pw)
	}
}

func TestRegister_JoinsExistingOrganization(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	b, err := svc.Register(ctx, auth.Registration{
		Username: "bob", Email: "b@x.com", Password: "Hunter222", ConfirmPassword: "Hunter222", OrgID: a.OrgID,
	})
	require.NoError(t, err)
	assert.Equal(t, a.OrgID, b.OrgID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAuthenticate(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "alice", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	require.NotNil(t, user.LastLoginAt)
	assert.True(t, user.LastLoginAt.Equal(clock.Now()))

	_, err = svc.Authenticate(ctx, "alice", "WrongPassword")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "Secret123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestAuthenticate_RejectsPasswordsPastBcryptLimit(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	password := "a1" + strings.Repeat("x", 70)
	require.Len(t, password, 72)
	_, err := svc.Register(ctx, auth.Registration{
		Username: "carol", Email: "c@x.com", Password: password, ConfirmPassword: password,
	})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "carol", password)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "carol", password+"DIFFERENT-SUFFIX")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "carol", password+"y")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestFindByID(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	found, err := svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)

	_, err = svc.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestFindByUsername(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	found, err := svc.FindByUsername(ctx, " alice ")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, found.ID)
	assert.Equal(t, registered.OrgID, found.OrgID)

	_, err = svc.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	email, first := "Alice@Example.com", "Alice"
	updated, err := svc.UpdateProfile(ctx, registered.ID, auth.ProfileUpdate{Email: &email, FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", updated.Email)
	assert.Equal(t, "Alice", updated.FirstName)

	bad := "nope"
	_, err = svc.UpdateProfile(ctx, registered.ID, auth.ProfileUpdate{Email: &bad})
	var verrs types.ValidationErrors
	assert.ErrorAs(t, err, &verrs)

	// credentials survive a profile edit
	_, err = svc.Authenticate(ctx, "alice", "Secret123")
	assert.NoError(t, err)
}

func TestSessions_LoginResolveLogout(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	_, token, err := svc.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id := svc.ResolveSession(ctx, token)
	authed, ok := id.(auth.Authenticated)
	require.True(t, ok, "expected authenticated identity, got %T", id)
	assert.Equal(t, registered.ID, authed.ID)
	assert.Equal(t, registered.OrgID, authed.OrgID)

	require.NoError(t, svc.Logout(ctx, token))
	assert.IsType(t, auth.Anonymous{}, svc.ResolveSession(ctx, token))
}

func TestSessions_FailedLoginLeavesAnonymous(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	_, token, err := svc.Login(ctx, "alice", "WrongPassword")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Empty(t, token)
	assert.IsType(t, auth.Anonymous{}, svc.ResolveSession(ctx, token))
}

func TestSessions_ExpiredAndUnknownTokensAreAnonymous(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, alice())
	require.NoError(t, err)
	_, token, err := svc.Login(ctx, "alice", "Secret123")
	require.NoError(t, err)

	assert.IsType(t, auth.Anonymous{}, svc.ResolveSession(ctx, ""))
	assert.IsType(t, auth.Anonymous{}, svc.ResolveSession(ctx, "forged-token"))

	clock.Advance(2 * time.Hour)
	assert.IsType(t, auth.Anonymous{}, svc.ResolveSession(ctx, token))

	removed, err := auth.NewSessionReaper(svc, time.Minute).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestTokens(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, alice())
	require.NoError(t, err)

	_, err = svc.GenerateToken(ctx, auth.Credentials{Username: "alice", Password: "nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	tok, err := svc.GenerateToken(ctx, auth.Credentials{Username: "alice", Password: "Secret123"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.Subject)
	assert.Equal(t, registered.OrgID, claims.OrgID)

	id, ok := svc.ResolveToken(ctx, tok.Token).(auth.Authenticated)
	require.True(t, ok)
	assert.Equal(t, registered.ID, id.ID)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   registered.ID,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
		},
		Username: "alice",
		OrgID:    registered.OrgID,
		Role:     auth.Role("superuser"),
	})
	forgedToken, err := forged.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(forgedToken)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.IsType(t, auth.Anonymous{}, svc.ResolveToken(ctx, forgedToken))

	clock.Advance(2 * time.Hour)
	_, err = svc.ValidateToken(tok.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.IsType(t, auth.Anonymous{}, svc.ResolveToken(ctx, tok.Token))
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.IsType(t, auth.Anonymous{}, auth.IdentityFrom(ctx))

	ctx = auth.WithIdentity(ctx, auth.Authenticated{ID: "u1"})
	id, ok := auth.IdentityFrom(ctx).(auth.Authenticated)
	require.True(t, ok)
	assert.Equal(t, "u1", id.ID)
	assert.True(t, id.IsAuthenticated())
	assert.False(t, auth.Anonymous{}.IsAuthenticated())
}
