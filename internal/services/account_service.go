package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"librarydesk/internal/auth"
	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// Registration is the input for creating an account.
type Registration struct {
	Username string
	Email    string
	Password string
	Role     models.UserRole
}

// Token is a bearer credential handed back on login.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AccountService registers users, logs them in and resolves bearer tokens to actors.
type AccountService interface {
	Register(ctx context.Context, in Registration) (*models.User, error)
	Login(ctx context.Context, email, password string) (*Token, error)
	Authenticate(ctx context.Context, token string) (Actor, error)
}

type accountService struct {
	db       *gorm.DB
	userRepo repositories.UserRepository
	tokens   *auth.TokenManager
	log      *zap.Logger
}

func NewAccountService(db *gorm.DB, userRepo repositories.UserRepository, tokens *auth.TokenManager, logger *zap.Logger) AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &accountService{
		db:       db,
		userRepo: userRepo,
		tokens:   tokens,
		log:      logger.Named("accounts"),
	}
}

var (
	hasUpper = regexp.MustCompile(`[A-Z]`)
	hasLower = regexp.MustCompile(`[a-z]`)
	hasDigit = regexp.MustCompile(`[0-9]`)
)

// ValidatePassword enforces length, mixed case, a digit and no spaces.
func ValidatePassword(pw string) error {
	switch {
	case len(pw) < 8:
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	case strings.Contains(pw, " "):
		return &ValidationError{Field: "password", Reason: "must not contain spaces"}
	case !hasUpper.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one uppercase letter"}
	case !hasLower.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one lowercase letter"}
	case !hasDigit.MatchString(pw):
		return &ValidationError{Field: "password", Reason: "must contain at least one number"}
	}
	return nil
}

// Register creates an account. Only one ADMIN may ever exist.
func (s *accountService) Register(ctx context.Context, in Registration) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.UserRoleUser
	}
	if !in.Role.Valid() {
		return nil, &ValidationError{Field: "role", Reason: "must be ADMIN or USER"}
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Password: string(hash),
		Role:     in.Role,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.Role == models.UserRoleAdmin {
			exists, err := s.userRepo.AdminExists(tx)
			if err != nil {
				return err
			}
			if exists {
				return ErrAdminExists
			}
		}
		taken, err := s.userRepo.EmailOrUsernameTaken(tx, user.Email, user.Username)
		if err != nil {
			return err
		}
		if taken {
			return ErrAccountTaken
		}
		if err := s.userRepo.Create(tx, user); err != nil {
			if repositories.IsUniqueViolation(err) {
				return ErrAccountTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "Register", err, zap.String("username", user.Username))
	}

	s.log.Info("user registered", zap.Stringer("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Login checks the password and issues a bearer token.
func (s *accountService) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.userRepo.GetByEmail(s.db.WithContext(ctx), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	signed, expires, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires}, nil
}

// Authenticate resolves a bearer token to the current user. The role comes
// from the store, not the token, so a changed role applies immediately.
func (s *accountService) Authenticate(ctx context.Context, token string) (Actor, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Actor{}, newError(ErrUnauthorized, "Invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return Actor{}, newError(ErrUnauthorized, "Invalid token")
	}

	user, err := s.userRepo.GetByID(s.db.WithContext(ctx), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, newError(ErrUnauthorized, "User no longer exists")
		}
		return Actor{}, fmt.Errorf("load user: %w", err)
	}
	return Actor{UserID: user.ID, Role: user.Role}, nil
}
