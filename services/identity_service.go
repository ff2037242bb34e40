package services

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
)

// Имена JWT claims.
const (
	jwtClaimUserID = "user_id"
	jwtClaimAlias  = "alias"
	jwtClaimGuest  = "guest"
	jwtClaimExp    = "exp"
	jwtClaimIat    = "iat"
)

// Identity is an authenticated caller. Guests are transient identities.
type Identity struct {
	UserID int64  `json:"user_id"`
	Alias  string `json:"alias"`
	Guest  bool   `json:"guest"`
}

type IdentityResolver interface {
	// Resolve validates a token and returns the identity it carries.
	Resolve(token string) (Identity, error)
	// Issue signs a token for id valid for ttl.
	Issue(id Identity, ttl time.Duration) (string, error)
	// ReleaseGuest frees the alias bound to a guest identity.
	ReleaseGuest(userID int64)
}

type jwtIdentityResolver struct {
	secret []byte
	clock  clockwork.Clock
	logger *slog.Logger

	mu          sync.Mutex
	guestAlias  map[string]int64
	guestByUser map[int64]string
}

func NewIdentityResolver(secret string, clock clockwork.Clock, logger *slog.Logger) IdentityResolver {
	return &jwtIdentityResolver{
		secret:      []byte(secret),
		clock:       clock,
		logger:      logger,
		guestAlias:  make(map[string]int64),
		guestByUser: make(map[int64]string),
	}
}

func (r *jwtIdentityResolver) Issue(id Identity, ttl time.Duration) (string, error) {
	if id.UserID <= 0 || strings.TrimSpace(id.Alias) == "" {
		return "", fmt.Errorf("%w: user id and alias are required", ErrValidationFailed)
	}
	now := r.clock.Now()
	claims := jwt.MapClaims{
		jwtClaimUserID: id.UserID,
		jwtClaimAlias:  id.Alias,
		jwtClaimGuest:  id.Guest,
		jwtClaimExp:    now.Add(ttl).Unix(),
		jwtClaimIat:    now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (r *jwtIdentityResolver) Resolve(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	// Срок действия проверяем по инжектируемым часам.
	if !claims.VerifyExpiresAt(r.clock.Now().Unix(), true) {
		return Identity{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	id, err := identityFromClaims(claims)
	if err != nil {
		return Identity{}, err
	}
	if id.Guest {
		if err := r.bindGuest(id); err != nil {
			return Identity{}, err
		}
	}
	return id, nil
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	rawID, ok := claims[jwtClaimUserID].(float64)
	if !ok || rawID != float64(int64(rawID)) || rawID <= 0 {
		return Identity{}, fmt.Errorf("%w: invalid '%s' claim", ErrInvalidToken, jwtClaimUserID)
	}
	alias, ok := claims[jwtClaimAlias].(string)
	if !ok || strings.TrimSpace(alias) == "" {
		return Identity{}, fmt.Errorf("%w: missing '%s' claim", ErrInvalidToken, jwtClaimAlias)
	}
	guest, _ := claims[jwtClaimGuest].(bool)
	return Identity{UserID: int64(rawID), Alias: alias, Guest: guest}, nil
}

// bindGuest reserves the alias for the guest identity until it is released.
func (r *jwtIdentityResolver) bindGuest(id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, taken := r.guestAlias[id.Alias]; taken && owner != id.UserID {
		return fmt.Errorf("%w: %q", ErrGuestAliasTaken, id.Alias)
	}
	if prev, ok := r.guestByUser[id.UserID]; ok && prev != id.Alias {
		delete(r.guestAlias, prev)
	}
	r.guestAlias[id.Alias] = id.UserID
	r.guestByUser[id.UserID] = id.Alias
	return nil
}

func (r *jwtIdentityResolver) ReleaseGuest(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	alias, ok := r.guestByUser[userID]
	if !ok {
		return
	}
	delete(r.guestByUser, userID)
	delete(r.guestAlias, alias)
	r.logger.Info("guest identity released", slog.Int64("user_id", userID), slog.String("alias", alias))
}
