package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"salonkita/backend/internal/domain"
)

// UserStore is the slice of the repository the auth layer needs. The
// AuthManager keeps its own credential cache on top so token checks and
// logins do not hit the repository on every request.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type account struct {
	hash      string
	role      string
	active    bool
	createdAt time.Time
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	store    UserStore

	mu       sync.RWMutex
	accounts map[string]account
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	m := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		store:    userStore,
		accounts: map[string]account{},
	}
	m.reload(context.Background())
	return m
}

// reload rebuilds the credential cache from the user store. Plain-text seed
// passwords are upgraded to bcrypt in the store on the way through.
func (a *AuthManager) reload(ctx context.Context) {
	if a.store == nil {
		return
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	fresh := make(map[string]account, len(users))
	for _, u := range users {
		name := normalizeUsername(u.Username)
		if name == "" {
			continue
		}
		secret := u.Password
		if !looksHashed(secret) {
			if upgraded, hashErr := bcryptHash(secret); hashErr == nil {
				secret = upgraded
				_ = a.store.UpdateUserPassword(ctx, name, upgraded)
			}
		}
		fresh[name] = account{hash: secret, role: u.Role, active: u.Active, createdAt: u.CreatedAt}
	}

	a.mu.Lock()
	a.accounts = fresh
	a.mu.Unlock()
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Accounts created outside this process appear on the next login.
	a.reload(context.Background())

	name := normalizeUsername(req.Username)
	a.mu.RLock()
	acc, known := a.accounts[name]
	a.mu.RUnlock()

	if !known || !passwordMatches(acc.hash, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !acc.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiry := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.issueToken(name, acc.role, expiry)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acc.role,
		ExpiresAt:   expiry.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) issueToken(username string, role string, expiry time.Time) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			Issuer:    "salonkita",
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiry),
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: subject, Role: claims.Role}, nil
}

func (a *AuthManager) CreateStaff(req domain.StaffCreateRequest) (domain.StaffUser, error) {
	a.reload(context.Background())

	name := normalizeUsername(req.Username)
	switch {
	case len(name) < 4:
		return domain.StaffUser{}, fmt.Errorf("username must be at least 4 characters")
	case strings.ContainsAny(name, " \t\r\n"):
		return domain.StaffUser{}, fmt.Errorf("username must not contain spaces")
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.StaffUser{}, fmt.Errorf("password must be at least 6 characters")
	}

	a.mu.RLock()
	_, taken := a.accounts[name]
	a.mu.RUnlock()
	if taken {
		return domain.StaffUser{}, fmt.Errorf("username already exists")
	}

	hash, err := bcryptHash(req.Password)
	if err != nil {
		return domain.StaffUser{}, fmt.Errorf("failed to hash password")
	}
	now := time.Now().UTC()

	if a.store != nil {
		err := a.store.CreateUser(context.Background(), domain.UserAccount{
			Username:  name,
			Password:  hash,
			Role:      "staff",
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.StaffUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[name] = account{hash: hash, role: "staff", active: true, createdAt: now}
	a.mu.Unlock()

	return domain.StaffUser{Username: name, Role: "staff", Active: true, CreatedAt: now}, nil
}

func (a *AuthManager) ListStaff() []domain.StaffUser {
	a.reload(context.Background())

	a.mu.RLock()
	staff := make([]domain.StaffUser, 0, len(a.accounts))
	for name, acc := range a.accounts {
		if acc.role != "staff" {
			continue
		}
		staff = append(staff, domain.StaffUser{
			Username:  name,
			Role:      acc.role,
			Active:    acc.active,
			CreatedAt: acc.createdAt,
		})
	}
	a.mu.RUnlock()

	sort.Slice(staff, func(i, j int) bool { return staff[i].Username < staff[j].Username })
	return staff
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func passwordMatches(hash string, input string) bool {
	if hash == "" || strings.TrimSpace(input) == "" || !looksHashed(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func bcryptHash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func looksHashed(value string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
