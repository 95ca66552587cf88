package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kube-rca/auth-service/internal/cache"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/token"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultNameStyle  = "default"

	// Logins containing '@' are looked up by email, so usernames never hold one.
	usernameRules = "min=3,max=64,excludes=@"
)

type AuthOptions struct {
	RefreshTTL time.Duration
	BcryptCost int
	Names      UsernameGenerator
	Notifier   Notifier
	Logger     logrus.FieldLogger
	Now        func() time.Time
}

type AuthService struct {
	users      CredentialStore
	sessions   SessionCache
	issuer     *token.Issuer
	names      UsernameGenerator
	notifier   Notifier
	log        logrus.FieldLogger
	validate   *validator.Validate
	refreshTTL time.Duration
	bcryptCost int
	now        func() time.Time
	dummyHash  []byte
}

// RegisterInput carries a sign-up request. Username may be left empty when a
// username generator is configured; Prefix and Style are passed to it.
type RegisterInput struct {
	Username string `validate:"omitempty,min=3,max=64,excludes=@"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=128"`
	Prefix   string `validate:"omitempty,max=32,alphanum"`
	Style    string `validate:"omitempty,oneof=default funny serious"`
	Profile  model.Profile
}

func NewAuthService(users CredentialStore, sessions SessionCache, issuer *token.Issuer, opts AuthOptions) (*AuthService, error) {
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// Compared against when the user does not exist so that unknown and known
	// usernames take the same time to reject.
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	return &AuthService{
		users:      users,
		sessions:   sessions,
		issuer:     issuer,
		names:      opts.Names,
		notifier:   opts.Notifier,
		log:        opts.Logger.WithField("component", "auth"),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		refreshTTL: opts.RefreshTTL,
		bcryptCost: opts.BcryptCost,
		now:        opts.Now,
		dummyHash:  dummy,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	if in.Username == "" {
		if s.names == nil {
			return nil, fmt.Errorf("%w: username is required", ErrValidation)
		}
		style := in.Style
		if style == "" {
			style = DefaultNameStyle
		}
		generated, err := s.generateUsername(ctx, in.Prefix, style)
		if err != nil {
			return nil, err
		}
		in.Username = generated
	}

	if err := s.ensureAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	hashed := string(hash)

	user, err := s.users.CreateUser(ctx, &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: &hashed,
		IsActive:     true,
		Profile:      in.Profile,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}

	s.notify(ctx, logrus.InfoLevel, "register", "user registered", user.ID, nil)
	return user, nil
}

// Authenticate checks a username (or email, when login contains '@') and
// password. Every rejection is ErrInvalidCredentials; the concrete reason is
// only logged.
func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.users.GetUserByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.users.GetUserByUsername(ctx, login)
	}
	if err != nil {
		if err = mapStoreError(err); !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, s.rejectLogin(ctx, login, 0, "unknown user")
	}

	if user.PasswordHash == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, s.rejectLogin(ctx, login, user.ID, "no local password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, s.rejectLogin(ctx, login, user.ID, "wrong password")
	}
	if !user.IsActive {
		return nil, s.rejectLogin(ctx, login, user.ID, "inactive account")
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	s.notify(ctx, logrus.InfoLevel, "login", "user authenticated", user.ID, nil)
	return user, nil
}

// Login authenticates and issues a token pair in one call.
func (s *AuthService) Login(ctx context.Context, login, password string) (*model.User, model.TokenPair, error) {
	user, err := s.Authenticate(ctx, login, password)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	pair, err := s.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	return user, pair, nil
}

// IssueTokenPair mints an access token carrying the user's current roles and
// an opaque refresh token backed by a session record in the cache.
func (s *AuthService) IssueTokenPair(ctx context.Context, user *model.User) (model.TokenPair, error) {
	accessToken, _, err := s.issuer.IssueAccess(user.ID, user.Roles)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, err := token.NewRefreshToken()
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	rec := model.SessionRecord{UserID: user.ID, CreatedAt: s.now().UTC()}
	if err := s.sessions.SaveSession(ctx, refreshToken, rec, s.refreshTTL); err != nil {
		return model.TokenPair{}, mapCacheError(err)
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// RotateRefreshToken consumes oldRefreshToken and issues a fresh pair. The
// session record is taken atomically, so a token can be rotated only once.
func (s *AuthService) RotateRefreshToken(ctx context.Context, oldRefreshToken string) (model.TokenPair, error) {
	if strings.TrimSpace(oldRefreshToken) == "" {
		return model.TokenPair{}, ErrInvalidRefreshToken
	}

	rec, err := s.sessions.TakeSession(ctx, oldRefreshToken)
	if err != nil {
		if errors.Is(err, cache.ErrUnavailable) {
			return model.TokenPair{}, mapCacheError(err)
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.WithError(err).Warn("discarding unreadable refresh session")
		}
		return model.TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.users.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(mapStoreError(err), ErrNotFound) {
			return model.TokenPair{}, ErrInvalidRefreshToken
		}
		return model.TokenPair{}, err
	}
	if !user.IsActive {
		s.log.WithField("user_id", user.ID).Info("refresh rejected for inactive account")
		return model.TokenPair{}, ErrInvalidRefreshToken
	}

	pair, err := s.IssueTokenPair(ctx, user)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.notify(ctx, logrus.DebugLevel, "refresh", "refresh token rotated", user.ID, nil)
	return pair, nil
}

// Revoke drops the session behind refreshToken. Unknown tokens are not an
// error.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return mapCacheError(s.sessions.DeleteSession(ctx, refreshToken))
}

// Logout revokes the given refresh token, if any, and denylists the caller's
// access token until it would have expired anyway. It never fails; cache
// errors are logged.
func (s *AuthService) Logout(ctx context.Context, principal *model.Principal, refreshToken string) {
	var userID int64
	if principal != nil {
		userID = principal.UserID
	}
	entry := s.log.WithField("user_id", userID)

	if err := s.Revoke(ctx, refreshToken); err != nil {
		entry.WithError(err).Warn("failed to revoke refresh token on logout")
	}

	if principal != nil && principal.TokenID != "" {
		ttl := principal.Expiry.Sub(s.now())
		if ttl > 0 {
			if err := s.sessions.RevokeToken(ctx, principal.TokenID, ttl); err != nil {
				entry.WithError(err).Warn("failed to denylist access token on logout")
			}
		}
	}

	s.notify(ctx, logrus.InfoLevel, "logout", "user logged out", userID, nil)
}

// Me returns the current record of the calling user.
func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return user, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return ErrDuplicateEmail
	} else if err = mapStoreError(err); !errors.Is(err, ErrNotFound) {
		return err
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return ErrDuplicateUsername
	} else if err = mapStoreError(err); !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// generateUsername asks the name service for a username and rejects replies
// that a local sign-up could not have used.
func (s *AuthService) generateUsername(ctx context.Context, prefix, style string) (string, error) {
	generated, err := s.names.Generate(ctx, prefix, style)
	if err != nil {
		s.log.WithError(err).Warn("username generator failed")
		return "", fmt.Errorf("%w: username generator: %v", ErrUnavailable, err)
	}
	generated = strings.TrimSpace(generated)
	if err := s.validate.Var(generated, usernameRules); err != nil {
		s.log.WithField("username", generated).Warn("username generator returned an unusable name")
		return "", fmt.Errorf("%w: username generator returned %q", ErrUnavailable, generated)
	}
	return generated, nil
}

func (s *AuthService) rejectLogin(ctx context.Context, login string, userID int64, reason string) error {
	s.log.WithFields(logrus.Fields{
		"login":  login,
		"reason": reason,
	}).Info("login rejected")
	s.notify(ctx, logrus.WarnLevel, "login_failed", "login rejected", userID, map[string]any{"reason": reason})
	return ErrInvalidCredentials
}

func (s *AuthService) notify(ctx context.Context, level logrus.Level, action, message string, userID int64, meta map[string]any) {
	s.notifier.Notify(ctx, model.AuditEvent{
		Time:     s.now().UTC(),
		Level:    level,
		Action:   action,
		Message:  message,
		UserID:   userID,
		Metadata: meta,
	})
}

func mapCacheError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cache.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
}
