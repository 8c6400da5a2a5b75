// Package auth registers accounts, checks passwords and issues the session
// tokens the gateway expects on every request.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"socialclient/pkg/backend"
	"socialclient/pkg/ids"
	"socialclient/pkg/repository"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

const TOKEN_TTL = 24 * time.Hour

// CODE_ALREADY_REGISTERED is the error code of a registration whose email
// already has credentials.
const CODE_ALREADY_REGISTERED = "user_already_exists"

var ErrInvalidCredentials = errors.New("invalid credentials")

type Claims struct {
	UserID string `json:"user_id"`
	jwt.StandardClaims
}

// Cache is the subset of the memcached client used for credential lookups.
type Cache interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
}

type credential struct {
	AccountID    string    `json:"account_id" bson:"account_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"password_hash" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Birthdate string `json:"birthdate"`
}

type Authenticator struct {
	store  backend.Store
	users  *repository.Users
	cache  Cache
	secret []byte
	now    func() time.Time
}

// New returns an Authenticator. cache may be nil.
func New(repo *repository.Repository, cache Cache, secret string) *Authenticator {
	return &Authenticator{
		store:  repo.Store(),
		users:  repo.Users,
		cache:  cache,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Register creates the credentials and the account of a new user and
// returns the account id.
func (a *Authenticator) Register(ctx context.Context, r Registration) (string, error) {
	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" || strings.TrimSpace(r.Username) == "" {
		return "", backend.Label("register", fmt.Errorf("email, password and username are required: %w", backend.ErrMissingIdentifier))
	}
	existing, err := a.store.Count(ctx, backend.From(repository.TableCredential).Filter(backend.Eq("email", email)))
	if err != nil {
		return "", backend.Label("register", err)
	}
	if existing > 0 {
		return "", &backend.RemoteError{Op: "register", Code: CODE_ALREADY_REGISTERED, Message: "User already registered"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", backend.Label("register", err)
	}

	id := ids.UUID()
	err = a.users.Create(ctx, repository.NewAccount{
		ID:        id,
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Birthdate: r.Birthdate,
	})
	if err != nil {
		return "", err
	}
	row := backend.Row{
		"account_id":    id,
		"email":         email,
		"password_hash": string(hash),
		"created_at":    a.now(),
	}
	if err := a.store.Insert(ctx, repository.TableCredential, row); err != nil {
		// keep usernames free when the email raced with another registration
		a.store.Delete(ctx, repository.TableAccount, backend.Eq("id", id))
		return "", backend.Label("register", err)
	}
	return id, nil
}

// Login checks a password and returns a signed session token.
func (a *Authenticator) Login(ctx context.Context, email string, password string) (string, error) {
	email = normalizeEmail(email)
	cred, err := a.lookup(ctx, email)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	now := a.now()
	claims := &Claims{
		UserID: cred.AccountID,
		StandardClaims: jwt.StandardClaims{
			Id:        ids.UUID(),
			Subject:   cred.AccountID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(TOKEN_TTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to create login token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token and returns the account id it was
// issued for.
func (a *Authenticator) Verify(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, err.Error())
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidCredentials
	}
	return claims.UserID, nil
}

// lookup reads the credentials of an email, trying the cache first.
func (a *Authenticator) lookup(ctx context.Context, email string) (credential, error) {
	var cred credential
	key := cacheKey(email)
	if a.cache != nil {
		item, err := a.cache.Get(key)
		if err == nil {
			if err := json.Unmarshal(item.Value, &cred); err == nil {
				return cred, nil
			}
		} else if !errors.Is(err, memcache.ErrCacheMiss) {
			return cred, fmt.Errorf("reading credentials from cache: %w", err)
		}
	}
	rows, err := a.store.Select(ctx, backend.From(repository.TableCredential).Filter(backend.Eq("email", email)))
	if err != nil {
		return cred, backend.Label("login", err)
	}
	if len(rows) == 0 {
		return cred, ErrInvalidCredentials
	}
	cred.AccountID, _ = rows[0]["account_id"].(string)
	cred.Email, _ = rows[0]["email"].(string)
	cred.PasswordHash, _ = rows[0]["password_hash"].(string)
	if a.cache != nil {
		if value, err := json.Marshal(cred); err == nil {
			a.cache.Set(&memcache.Item{Key: key, Value: value, Expiration: int32(TOKEN_TTL.Seconds())})
		}
	}
	return cred, nil
}

func cacheKey(email string) string {
	return "login:" + strings.ReplaceAll(email, " ", "_")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
