package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dukapos/backend/internal/domain"
)

// UserStore is the slice of the repository auth needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsersByRole(ctx context.Context, role string) ([]domain.UserAccount, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
	pins     *pinCache
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		pins:     newPINCache(),
	}
}

// StartPINWarmup kicks off the best-effort background precompute of all
// four-digit PIN digests. Login never waits on it; a cache miss falls
// back to hashing on demand.
func (a *AuthManager) StartPINWarmup(ctx context.Context) {
	go a.pins.warm(ctx)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	account, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if account.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !account.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}
	return a.issue(account.User)
}

// PINLogin is the cashier fast path: digest the entered PIN, consult the
// precomputed table first, then match against stored cashier hashes.
func (a *AuthManager) PINLogin(ctx context.Context, req domain.PINLoginRequest) (domain.LoginResponse, error) {
	if !domain.ValidPIN(req.PIN) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	digest := a.pins.digest(req.PIN)
	cashiers, err := a.users.ListUsersByRole(ctx, domain.RoleCashier)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	for _, cashier := range cashiers {
		if cashier.PINHash != "" && cashier.PINHash == digest {
			if !cashier.Active {
				return domain.LoginResponse{}, errors.New("account is inactive")
			}
			return a.issue(cashier.User)
		}
	}
	return domain.LoginResponse{}, errors.New("invalid credentials")
}

func (a *AuthManager) issue(user domain.User) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "dukapos",
		},
		Username: user.Username,
		Role:     user.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{ID: sub, Username: claims.Username, Role: claims.Role}, nil
}

// pinCache precomputes the digest of every four-digit PIN so the login
// hot path is a table read. It is safe to query at any point during the
// warm-up; misses hash on demand.
type pinCache struct {
	mu    sync.RWMutex
	table map[string]string
}

func newPINCache() *pinCache {
	return &pinCache{table: make(map[string]string, 10000)}
}

const pinWarmBatch = 100

func (c *pinCache) warm(ctx context.Context) {
	started := time.Now()
	for batch := 0; batch < 10000; batch += pinWarmBatch {
		select {
		case <-ctx.Done():
			log.Printf("[auth] WARN: PIN cache warm-up cancelled after %d entries", batch)
			return
		default:
		}
		entries := make(map[string]string, pinWarmBatch)
		for i := batch; i < batch+pinWarmBatch; i++ {
			pin := fmt.Sprintf("%04d", i)
			entries[pin] = domain.PINDigest(pin)
		}
		c.mu.Lock()
		for pin, digest := range entries {
			c.table[pin] = digest
		}
		c.mu.Unlock()
	}
	log.Printf("[auth] PIN cache warmed in %s", time.Since(started))
}

func (c *pinCache) digest(pin string) string {
	c.mu.RLock()
	digest, ok := c.table[pin]
	c.mu.RUnlock()
	if ok {
		return digest
	}
	return domain.PINDigest(pin)
}
