package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrDuplicateUsername  = errors.New("a user with that username already exists")
	ErrWeakCredential     = errors.New("password does not meet the credential policy")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenGeneration    = errors.New("failed to generate token")
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	OrgID    string `json:"org_id"`
	Role     Role   `json:"role"`
}

// Options configures the identity service.
type Options struct {
	JWTSecret         string
	TokenTTL          time.Duration
	SessionTTL        time.Duration
	PasswordMinLength int
	// HashCost is the bcrypt cost, bcrypt.DefaultCost when zero.
	HashCost int
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// Service is the single identity store. Password hashes are created and
// checked here and nowhere else.
type Service struct {
	db        *Database
	jwtSecret []byte
	opts      Options
	validate  *validator.Validate
	// dummyHash keeps unknown-user logins as slow as wrong-password ones.
	dummyHash []byte
}

// NewService creates the identity service over the relational store.
func NewService(gormDB *gorm.DB, opts Options) *Service {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 14 * 24 * time.Hour
	}
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = 8
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.HashCost)

	return &Service{
		db:        NewDatabase(gormDB),
		jwtSecret: []byte(opts.JWTSecret),
		opts:      opts,
		validate:  newValidator(),
		dummyHash: dummy,
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// Register creates a new identity. The password must match its confirmation
// and satisfy the credential policy; usernames are unique.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.OrgID = strings.TrimSpace(reg.OrgID)

	errs := validationErrors(s.validate.Struct(reg))
	if reg.Password != "" && reg.ConfirmPassword != "" && reg.Password != reg.ConfirmPassword {
		errs.Add("confirm_password", "Passwords do not match.")
	}
	if errs.HasErrors() {
		return User{}, errs
	}

	if err := s.checkPolicy(reg.Password); err != nil {
		return User{}, err
	}

	exists, err := s.db.UsernameExists(ctx, reg.Username)
	if err != nil {
		return User{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return User{}, ErrDuplicateUsername
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.opts.HashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	orgID := reg.OrgID
	if orgID == "" {
		orgID = uuid.New().String()
	}

	record := &UserRecord{
		UserID:         uuid.New().String(),
		Username:       reg.Username,
		Email:          reg.Email,
		FirstName:      strings.TrimSpace(reg.FirstName),
		LastName:       strings.TrimSpace(reg.LastName),
		HashedPassword: string(hash),
		Role:           RoleAnalyst,
		OrgID:          orgID,
	}
	if err := s.db.CreateUser(ctx, record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	log.Info().
		Str("user_id", record.UserID).
		Str("org_id", record.OrgID).
		Msg("user registered")

	return record.toUser(), nil
}

// Authenticate verifies a username and password and stamps the last login
// time. Unknown users and wrong passwords are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	// bcrypt ignores input past its limit, so a longer password could match a
	// stored one that shares its first 72 bytes. No stored password is longer.
	if len(password) > maxPasswordBytes {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password[:maxPasswordBytes]))
		return User{}, ErrInvalidCredentials
	}

	record, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !isNotFound(err) {
			return User{}, fmt.Errorf("lookup user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.HashedPassword), []byte(password)); err != nil {
		log.Debug().Str("user_id", record.UserID).Msg("password mismatch")
		return User{}, ErrInvalidCredentials
	}

	now := s.now()
	if err := s.db.TouchLastLogin(ctx, record.UserID, now); err != nil {
		return User{}, fmt.Errorf("update last login: %w", err)
	}
	record.LastLoginAt = &now

	return record.toUser(), nil
}

// FindByID returns the identity with the given id.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	record, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return record.toUser(), nil
}

// FindByUsername returns the identity registered under username.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	record, err := s.db.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return record.toUser(), nil
}

// UpdateProfile edits the non-credential profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (User, error) {
	if errs := validationErrors(s.validate.Struct(update)); errs.HasErrors() {
		return User{}, errs
	}

	record, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	if update.Email != nil {
		record.Email = strings.ToLower(strings.TrimSpace(*update.Email))
	}
	if update.FirstName != nil {
		record.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		record.LastName = strings.TrimSpace(*update.LastName)
	}

	if err := s.db.UpdateUser(ctx, record); err != nil {
		return User{}, fmt.Errorf("update user: %w", err)
	}
	return record.toUser(), nil
}

// Login authenticates and opens a server side session. The returned token is
// the only copy of the plaintext; the store keeps its hash.
func (s *Service) Login(ctx context.Context, username, password string) (User, string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return User{}, "", err
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return User{}, "", err
	}

	err = s.db.CreateSession(ctx, &SessionRecord{
		TokenHash: hash,
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.opts.SessionTTL),
	})
	if err != nil {
		return User{}, "", fmt.Errorf("create session: %w", err)
	}

	log.Info().Str("user_id", user.ID).Msg("session opened")
	return user, plain, nil
}

// Logout ends the session identified by token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.db.DeleteSessionByHash(ctx, hashToken(token))
}

// SessionTTL is how long a new session stays valid.
func (s *Service) SessionTTL() time.Duration {
	return s.opts.SessionTTL
}

// ResolveSession maps a session token to an identity with a single store
// lookup. Missing, expired and unknown tokens resolve to Anonymous.
func (s *Service) ResolveSession(ctx context.Context, token string) Identity {
	if token == "" {
		return Anonymous{}
	}
	record, err := s.db.GetUserBySessionHash(ctx, hashToken(token), s.now())
	if err != nil {
		if !isNotFound(err) {
			log.Error().Err(err).Msg("session lookup failed")
		}
		return Anonymous{}
	}
	return AuthenticatedFrom(record.toUser())
}

// ResolveToken maps a bearer JWT to an identity. The user is looked up once
// so deleted users lose access before their token expires.
func (s *Service) ResolveToken(ctx context.Context, token string) Identity {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return Anonymous{}
	}
	user, err := s.FindByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			log.Error().Err(err).Msg("token user lookup failed")
		}
		return Anonymous{}
	}
	return AuthenticatedFrom(user)
}

// GenerateToken authenticates the credentials and issues a signed JWT for
// programmatic clients.
func (s *Service) GenerateToken(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	user, err := s.Authenticate(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiration := now.Add(s.opts.TokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Username: user.Username,
		OrgID:    user.OrgID,
		Role:     user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature, expiration and that the role is a known one
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Subject != "" && claims.Role.Valid() {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// checkPolicy enforces the credential policy: a minimum length, the bcrypt
// input limit, and at least one letter and one digit.
func (s *Service) checkPolicy(password string) error {
	if len([]rune(password)) < s.opts.PasswordMinLength {
		return fmt.Errorf("%w: use at least %d characters", ErrWeakCredential, s.opts.PasswordMinLength)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: use at most %d bytes", ErrWeakCredential, maxPasswordBytes)
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: include at least one letter and one digit", ErrWeakCredential)
	}
	return nil
}

func newTokenPair() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)
	return plain, hashToken(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
