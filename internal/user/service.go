package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"relay-chat/internal/models"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrNotFound       = errors.New("user not found")
	ErrBadCredential  = errors.New("invalid credentials")
)

const tokenIssuer = "relay-chat"

type Options struct {
	JWTSecret         string
	BcryptCost        int
	MinPasswordLength int
	TokenTTL          time.Duration
}

type Service struct {
	repo *Repository
	opts Options
	now  func() time.Time
}

type MyJWTClaims struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 6
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	return &Service{
		repo: repo,
		opts: opts,
		now:  time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return nil, fmt.Errorf("%w: email, password and name are required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(req.Password) < s.opts.MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.opts.MinPasswordLength)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := models.Millis(s.now())
	first, _ := utf8.DecodeRuneInString(name)
	u := &models.User{
		ID:        "user_" + uuid.NewString(),
		Email:     email,
		Password:  string(hashedPwd),
		Name:      name,
		Avatar:    string(unicode.ToUpper(first)),
		CreatedAt: now,
		LastSeen:  now,
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks the credential and bumps lastSeen on success.
func (s *Service) Authenticate(ctx context.Context, req *LoginRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrBadCredential
	}

	u.LastSeen = models.Millis(s.now())
	if err := s.repo.Touch(u.ID, u.LastSeen); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.Authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	ss, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		Success:     true,
		User:        u.Public(),
		AccessToken: ss,
	}, nil
}

func (s *Service) IssueToken(u *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:   u.ID,
		Name: u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.opts.TokenTTL)),
		},
	})
	return token.SignedString([]byte(s.opts.JWTSecret))
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", ErrBadCredential
	}

	return claims.ID, claims.Name, nil
}

// Exists reports whether id names a registered user.
func (s *Service) Exists(id string) bool {
	_, ok := s.repo.GetUserByID(id)
	return ok
}

func (s *Service) Get(id string) (*models.User, bool) {
	return s.repo.GetUserByID(id)
}

func (s *Service) Touch(id string, t time.Time) error {
	return s.repo.Touch(id, models.Millis(t))
}

func (s *Service) SearchUsers(ctx context.Context, query string) []models.PublicUser {
	return s.repo.SearchUsers(ctx, query)
}
