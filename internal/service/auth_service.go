package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quizmasterhq/quizmaster/internal/config"
	"github.com/quizmasterhq/quizmaster/internal/model"
	"github.com/quizmasterhq/quizmaster/internal/repository"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailTaken           = errors.New("email already registered")
	ErrSessionAlreadyActive = errors.New("another session is already active for this account")
	ErrRoleAlreadySet       = errors.New("role already chosen")
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID int        `json:"user_id"`
	Role   model.Role `json:"role,omitempty"`
}

// AuthService handles authentication, JWT, and session management.
type AuthService struct {
	cfg      *config.Config
	rdb      *redis.Client
	userRepo *repository.UserRepository
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, userRepo *repository.UserRepository) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, userRepo: userRepo}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Register creates a new account with no role yet. The role is chosen once,
// after first login.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         model.RoleUnset,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and issues a JWT. Students are limited to a
// single concurrent session; a second login is rejected until the first
// expires or is reset.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, err
	}

	token, err := s.generateToken(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// SetRole records the account's one-time role choice and issues a token
// carrying the new role claim. The caller's current token still says
// unset, so without the fresh token every role-guarded route would keep
// answering ROLE_REQUIRED until the next login.
func (s *AuthService) SetRole(ctx context.Context, userID int, role model.Role) (string, *model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("get user: %w", err)
	}
	if user.Role != model.RoleUnset {
		return "", nil, ErrRoleAlreadySet
	}
	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		return "", nil, fmt.Errorf("update role: %w", err)
	}
	user.Role = role

	token, err := s.generateToken(ctx, user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *AuthService) generateToken(ctx context.Context, user *model.User) (string, error) {
	jti := uuid.New().String()
	now := time.Now()

	if user.Role == model.RoleStudent {
		sessionKey := config.CacheKey.UserSessionKey(user.ID)

		existing, err := s.rdb.Get(ctx, sessionKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("check session: %w", err)
		}
		if existing != "" {
			return "", ErrSessionAlreadyActive
		}
		if err := s.rdb.Set(ctx, sessionKey, jti, s.cfg.JWTExpiry).Err(); err != nil {
			return "", fmt.Errorf("store session: %w", err)
		}
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID: user.ID,
		Role:   user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// ValidateStudentSession checks that the token's JTI matches the active
// session in Redis.
func (s *AuthService) ValidateStudentSession(ctx context.Context, userID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.UserSessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errors.New("no active session")
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return errors.New("session invalidated")
	}
	return nil
}

// ResetStudentSession removes a student's session from Redis, allowing a new
// login.
func (s *AuthService) ResetStudentSession(ctx context.Context, userID int) error {
	return s.rdb.Del(ctx, config.CacheKey.UserSessionKey(userID)).Err()
}
