package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/aldoetobex/falacomigo-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // user or lawyer ID
	Role string `json:"role"` // "client" | "lawyer" | "admin"
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the given principal.
func (t *Tokens) Issue(id uuid.UUID, role models.Role) (string, error) {
	now := t.now()
	claims := &Claims{
		Sub:  id.String(),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	return signed, errors.Wrap(err, "sign token")
}

// Parse verifies a token and returns the caller it names.
func (t *Tokens) Parse(raw string) (models.Caller, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Caller{}, errors.Wrap(err, "invalid token")
	}
	if !token.Valid {
		return models.Caller{}, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return models.Caller{}, errors.New("unexpected claims type")
	}
	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return models.Caller{}, errors.Wrap(err, "invalid subject")
	}
	role := models.Role(claims.Role)
	switch role {
	case models.RoleClient, models.RoleLawyer, models.RoleAdmin:
	default:
		return models.Caller{}, errors.Errorf("unknown role %q", claims.Role)
	}
	return models.Caller{ID: id, Role: role}, nil
}
