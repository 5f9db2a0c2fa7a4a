package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidRole        = errors.New("invalid role")
)

const mysqlDuplicateEntry = 1062

// Service is the identity provider: password sign-up and sign-in with
// bearer tokens whose hashes are kept in auth_tokens.
type Service struct {
	db        *sql.DB
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewService creates a new authentication service instance
func NewService(db *sql.DB, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}
}

// TokenTTL returns how long issued tokens stay valid.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

// SignUp creates a user with an email, password and role.
func (s *Service) SignUp(ctx context.Context, req models.CreateUserRequest) (*models.Identity, error) {
	email := normalizeEmail(req.Email)
	if !models.ValidRole(req.Role) {
		return nil, ErrInvalidRole
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role) VALUES (?, ?, ?, ?)",
		id, email, string(passwordHash), req.Role)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.WithFields(log.Fields{"user_id": id, "role": req.Role}).Info("User signed up")
	return &models.Identity{UserID: id, Email: email, Role: req.Role}, nil
}

// SignIn checks the password and issues a token.
func (s *Service) SignIn(ctx context.Context, req models.LoginRequest) (string, *models.Identity, error) {
	email := normalizeEmail(req.Email)

	var identity models.Identity
	var passwordHash string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, role, password_hash FROM users WHERE email = ?", email).
		Scan(&identity.UserID, &identity.Email, &identity.Role, &passwordHash)
	if err == sql.ErrNoRows {
		log.WithField("email", email).Warn("Sign-in for unknown email")
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		log.WithField("user_id", identity.UserID).Warn("Password mismatch")
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(ctx, identity)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, &identity, nil
}

// ValidateToken parses a bearer token, checks it is still registered and
// returns the identity it was issued to.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return nil, ErrInvalidToken
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM auth_tokens WHERE user_id = ? AND token_hash = ? AND expires_at > ?)",
		userID, hashToken(tokenString), s.now().UTC()).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if !exists {
		return nil, ErrInvalidToken
	}
	return &models.Identity{UserID: userID, Email: email, Role: role}, nil
}

// SignOut revokes a token.
func (s *Service) SignOut(ctx context.Context, tokenString string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM auth_tokens WHERE token_hash = ?", hashToken(tokenString))
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *Service) generateToken(ctx context.Context, identity models.Identity) (string, error) {
	now := s.now()
	expiry := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": identity.UserID,
		"email":   identity.Email,
		"role":    identity.Role,
		"jti":     uuid.NewString(),
		"exp":     expiry.Unix(),
		"iat":     now.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO auth_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)",
		hashToken(tokenString), identity.UserID, expiry.UTC())
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
