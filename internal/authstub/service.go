// Package authstub is a development stand-in for the remote auth collaborator. It
// serves login, 2FA verification and refresh token rotation from memory and must
// never back real accounts.
package authstub

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jcarweb/repuestospro-sub005/internal/logger"
	"github.com/jcarweb/repuestospro-sub005/internal/security"
)

// Sentinel errors; the handler maps them to HTTP status codes.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected; all sessions revoked")
	ErrInvalidChallenge    = errors.New("invalid or expired 2fa challenge")
	ErrInvalidCode         = errors.New("invalid 2fa code")
	ErrUserExists          = errors.New("user already exists")
)

const (
	otpDigits         = 6
	challengeTTL      = 5 * time.Minute
	maxOTPAttempts    = 5
	minPasswordLength = 8
)

// User is an account known to the stub.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	TwoFactor    bool
}

type session struct {
	userID      string
	refreshJTI  string
	refreshHash string
	revoked     bool
}

// AuthResult is issued credentials.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// LoginResult is either credentials or a pending 2FA challenge.
type LoginResult struct {
	Auth *AuthResult
	// TempToken identifies the pending challenge when 2FA is required.
	TempToken string
	// OTP is returned only when the service was built with OTPReturnToClient.
	OTP string
}

// Options configures a Service.
type Options struct {
	Hasher *security.Hasher
	Tokens *security.TokenProvider
	// OTPReturnToClient echoes the 2FA code in the login response. There is no SMS
	// or mail channel in development.
	OTPReturnToClient bool
	Now               func() time.Time
	Logger            *zap.Logger
}

// Service implements the stub's auth flows.
type Service struct {
	hasher     *security.Hasher
	tokens     *security.TokenProvider
	challenges ChallengeStore
	returnOTP  bool
	nowF       func() time.Time
	log        *zap.Logger

	mu       sync.Mutex
	users    map[string]*User // by email
	byID     map[string]*User
	sessions map[string]*session
}

// NewService returns a Service with no users.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = security.NewHasher(0)
	}
	store := NewMemoryChallengeStore()
	store.nowF = now
	return &Service{
		hasher:     hasher,
		tokens:     opts.Tokens,
		challenges: store,
		returnOTP:  opts.OTPReturnToClient,
		nowF:       now,
		log:        logger.OrNop(opts.Logger),
		users:      make(map[string]*User),
		byID:       make(map[string]*User),
		sessions:   make(map[string]*session),
	}
}

// AddUser registers an account with a bcrypt-hashed password.
func (s *Service) AddUser(email, password, name, role string, twoFactor bool) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || len(password) < minPasswordLength {
		return nil, errors.New("authstub: email and a password of at least 8 characters are required")
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[email]; ok {
		return nil, ErrUserExists
	}
	u := &User{ID: uuid.New().String(), Email: email, Name: name, Role: role, PasswordHash: hash, TwoFactor: twoFactor}
	s.users[email] = u
	s.byID[u.ID] = u
	return u, nil
}

// Login checks email and password. Accounts with 2FA get a challenge instead of tokens.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	s.mu.Lock()
	u, ok := s.users[email]
	s.mu.Unlock()
	if !ok || !s.hasher.Matches(u.PasswordHash, []byte(password)) {
		s.log.Info("login rejected", zap.String("email", logger.MaskEmail(email)))
		return nil, ErrInvalidCredentials
	}

	if u.TwoFactor {
		otp, err := security.GenerateDigits(otpDigits)
		if err != nil {
			return nil, err
		}
		id := uuid.New().String()
		s.challenges.Put(ctx, id, challenge{
			userID:    u.ID,
			codeHash:  security.HashToken(otp),
			expiresAt: s.nowF().Add(challengeTTL),
		})
		res := &LoginResult{TempToken: id}
		if s.returnOTP {
			res.OTP = otp
		}
		return res, nil
	}

	auth, err := s.startSession(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Auth: auth}, nil
}

// VerifyTwoFactor completes a pending 2FA login. The challenge is dropped after
// success or too many wrong codes.
func (s *Service) VerifyTwoFactor(ctx context.Context, tempToken, code string) (*AuthResult, error) {
	c, ok := s.challenges.Get(ctx, tempToken)
	if !ok {
		return nil, ErrInvalidChallenge
	}
	if !security.TokenHashEqual(code, c.codeHash) {
		if s.challenges.Fail(ctx, tempToken) >= maxOTPAttempts {
			s.challenges.Delete(ctx, tempToken)
		}
		return nil, ErrInvalidCode
	}
	s.challenges.Delete(ctx, tempToken)

	s.mu.Lock()
	u, ok := s.byID[c.userID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidChallenge
	}
	return s.startSession(u)
}

func (s *Service) startSession(u *User) (*AuthResult, error) {
	sessionID := uuid.New().String()
	refresh, err := s.tokens.IssueRefresh(sessionID, u.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(sessionID, subject(u))
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sessionID] = &session{userID: u.ID, refreshJTI: refresh.JTI, refreshHash: security.HashToken(refresh.Token)}
	s.mu.Unlock()
	return &AuthResult{AccessToken: access.Token, RefreshToken: refresh.Token, ExpiresAt: access.ExpiresAt, User: *u}, nil
}

// Refresh validates and rotates the refresh token. Presenting an already rotated
// token revokes every session of the user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[claims.SessionID]
	if !ok || sess.revoked {
		return nil, ErrInvalidRefreshToken
	}
	if sess.refreshJTI != claims.ID {
		for _, other := range s.sessions {
			if other.userID == sess.userID {
				other.revoked = true
			}
		}
		s.log.Warn("refresh token reuse; sessions revoked", zap.String("user_id", sess.userID))
		return nil, ErrRefreshTokenReuse
	}
	if !security.TokenHashEqual(refreshToken, sess.refreshHash) {
		return nil, ErrInvalidRefreshToken
	}
	u, ok := s.byID[sess.userID]
	if !ok {
		return nil, ErrInvalidRefreshToken
	}

	next, err := s.tokens.IssueRefresh(claims.SessionID, u.ID)
	if err != nil {
		return nil, err
	}
	access, err := s.tokens.IssueAccess(claims.SessionID, subject(u))
	if err != nil {
		return nil, err
	}
	sess.refreshJTI = next.JTI
	sess.refreshHash = security.HashToken(next.Token)
	return &AuthResult{AccessToken: access.Token, RefreshToken: next.Token, ExpiresAt: access.ExpiresAt, User: *u}, nil
}

func subject(u *User) security.Subject {
	return security.Subject{ID: u.ID, Name: u.Name, Role: u.Role, Email: u.Email}
}
