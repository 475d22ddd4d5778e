package service

import (
	"context"
	"errors"
	"lifeos_api/internal/common"
	"lifeos_api/internal/common/security"
	"lifeos_api/internal/domain/model"
	"lifeos_api/internal/domain/repository"
	"lifeos_api/internal/platform/metrics"
	"log/slog"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/samber/oops"
)

const (
	TokenTypeBearer = "bearer"

	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
)

const (
	msgEmailTaken         = "Email already registered"
	msgUsernameTaken      = "Username already taken"
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidToken       = "Invalid or expired token"
	msgUserNotFound       = "User not found"
	msgCreateFailed       = "Failed to create user account"
	msgUnexpected         = "An unexpected error occurred"
	msgUnexpectedLogin    = "An unexpected error occurred during login"
	msgUnexpectedVerify   = "An unexpected error occurred during token verification"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

type TokenService interface {
	Issue(userID int64, username string) (string, error)
	Verify(token string) (*security.TokenClaims, bool)
}

type AuthService struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenService
	logger   *slog.Logger
	metrics  *metrics.Metrics

	dummyOnce   sync.Once
	dummyDigest string
}

func NewAuthService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenService,
	logger *slog.Logger,
	m *metrics.Metrics,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger.With("component", "auth"),
		metrics:  m,
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

type VerifyResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Valid    bool   `json:"valid"`
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	if err := validateRegistration(req); err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	if _, err := s.userRepo.FindByEmail(ctx, req.Email); err == nil {
		return nil, s.fail(ctx, "register", duplicateError("email"))
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, s.fail(ctx, "register", common.NewInternalError(msgUnexpected,
			oops.Code("USER_LOOKUP_FAILED").With("by", "email").Wrap(err)))
	}

	if _, err := s.userRepo.FindByUsername(ctx, req.Username); err == nil {
		return nil, s.fail(ctx, "register", duplicateError("username"))
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, s.fail(ctx, "register", common.NewInternalError(msgUnexpected,
			oops.Code("USER_LOOKUP_FAILED").With("by", "username").Wrap(err)))
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, s.fail(ctx, "register", common.NewInternalError(msgUnexpected,
			oops.Code("PASSWORD_HASH_FAILED").Wrap(err)))
	}

	var resp *AuthResponse
	err = s.userRepo.WithTx(ctx, func(tx repository.UserRepository) error {
		user := &model.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: digest,
		}
		if err := tx.Create(ctx, user); err != nil {
			return createError(err)
		}

		token, err := s.tokens.Issue(user.ID, user.Username)
		if err != nil {
			return common.NewInternalError(msgUnexpected,
				oops.Code("TOKEN_ISSUE_FAILED").With("user_id", user.ID).Wrap(err))
		}

		resp = &AuthResponse{
			UserID:    user.ID,
			Username:  user.Username,
			Token:     token,
			TokenType: TokenTypeBearer,
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	s.metrics.RecordAuth("register", metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "user registered", "user_id", resp.UserID)
	return resp, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if req.Email == "" {
		return nil, s.fail(ctx, "login", common.NewValidationError("email", common.CodeFormat, "Email is required"))
	}
	if req.Password == "" {
		return nil, s.fail(ctx, "login", common.NewValidationError("password", common.CodeFormat, "Password is required"))
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Same cost as a real comparison so response time does not reveal the miss.
			s.hasher.Verify(req.Password, s.dummyHash())
			return nil, s.fail(ctx, "login", common.NewAuthenticationError(msgInvalidCredentials))
		}
		return nil, s.fail(ctx, "login", common.NewInternalError(msgUnexpectedLogin,
			oops.Code("USER_LOOKUP_FAILED").With("by", "email").Wrap(err)))
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, s.fail(ctx, "login", common.NewAuthenticationError(msgInvalidCredentials))
	}

	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, s.fail(ctx, "login", common.NewInternalError(msgUnexpectedLogin,
			oops.Code("TOKEN_ISSUE_FAILED").With("user_id", user.ID).Wrap(err)))
	}

	s.metrics.RecordAuth("login", metrics.ResultSuccess)
	return &AuthResponse{
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		TokenType: TokenTypeBearer,
	}, nil
}

func (s *AuthService) Verify(ctx context.Context, token string) (*VerifyResponse, error) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return nil, s.fail(ctx, "verify", common.NewAuthenticationError(msgInvalidToken))
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, s.fail(ctx, "verify", common.NewAuthenticationError(msgUserNotFound))
		}
		return nil, s.fail(ctx, "verify", common.NewInternalError(msgUnexpectedVerify,
			oops.Code("USER_LOOKUP_FAILED").With("by", "id", "user_id", claims.UserID).Wrap(err)))
	}

	s.metrics.RecordAuth("verify", metrics.ResultSuccess)
	return &VerifyResponse{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Valid:    true,
	}, nil
}

// fail records the outcome and logs server-side failures. It always returns
// a *common.Error.
func (s *AuthService) fail(ctx context.Context, operation string, err error) error {
	appErr := common.AsError(err)
	switch appErr.Kind {
	case common.KindValidation, common.KindAuthentication:
		s.metrics.RecordAuth(operation, metrics.ResultRejected)
		s.logger.DebugContext(ctx, "auth request rejected",
			"operation", operation, "kind", string(appErr.Kind), "message", appErr.Message)
	default:
		s.metrics.RecordAuth(operation, metrics.ResultError)
		common.LogError(ctx, s.logger, operation+" failed", appErr)
	}
	return appErr
}

func (s *AuthService) dummyHash() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("lifeos-dummy-password")
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

func validateRegistration(req RegisterRequest) error {
	if n := utf8.RuneCountInString(req.Username); n < minUsernameLen || n > maxUsernameLen {
		return common.NewValidationError("username", common.CodeFormat,
			"Username must be between 3 and 50 characters")
	}
	if !emailPattern.MatchString(req.Email) {
		return common.NewValidationError("email", common.CodeFormat, "Invalid email format")
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		return common.NewValidationError("password", common.CodeFormat,
			"Password must be at least 6 characters")
	}
	return nil
}

func duplicateError(field string) *common.Error {
	msg := msgUsernameTaken
	if field == "email" {
		msg = msgEmailTaken
	}
	return common.NewValidationError(field, common.CodeUniqueConstraint, msg)
}

// createError translates an insert failure. Unique violations the store
// could attribute become the same validation errors as the pre-checks.
func createError(err error) error {
	var uv *repository.UniqueViolationError
	if errors.As(err, &uv) {
		switch uv.Field {
		case "email", "username":
			return duplicateError(uv.Field)
		default:
			return common.NewDatabaseError(msgCreateFailed,
				oops.Code("USER_CREATE_FAILED").With("constraint", "unknown").Wrap(err))
		}
	}
	return common.NewInternalError(msgUnexpected, oops.Code("USER_CREATE_FAILED").Wrap(err))
}
