package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// Verifier checks HS256 bearer tokens issued by the identity service.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for tokens signed with secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

// Verify parses and validates a token. The token must carry an expiry, the
// subject must be a user UUID and the role one of the known roles.
func (v *Verifier) Verify(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, errors.Wrap(ErrUnauthenticated, "invalid or expired token")
	}

	sub, err := c.GetSubject()
	if err != nil {
		return Principal{}, errors.Wrap(ErrUnauthenticated, "subject")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Principal{}, errors.Wrap(ErrUnauthenticated, "subject is not a user id")
	}
	if c.Role == "" {
		c.Role = RoleCustomer
	}
	if !c.Role.Valid() {
		return Principal{}, errors.Wrapf(ErrUnauthenticated, "unknown role %q", c.Role)
	}
	return Principal{UserID: userID, Role: c.Role}, nil
}

// Sign mints a token for p. Used by operator tooling and tests; customer
// tokens come from the identity service.
func Sign(secret []byte, p Principal, now time.Time, ttl time.Duration) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: p.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}
