package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/carelink/clinic-chat-go/internal/errors"
	"github.com/carelink/clinic-chat-go/internal/model"
)

// Verifier checks a signed identity assertion and resolves it to an Identity.
// Token issuance and credential verification live in the external identity
// service; this side only consumes the assertion.
type Verifier interface {
	Verify(token string) (model.Identity, error)
}

// identityClaims is the shape of the token minted by the identity service.
// Subject carries the identity id, Kind the chat-usable account kind.
type identityClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

type jwtVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier returns a Verifier for HS256 tokens signed with the shared
// identity-service secret.
func NewJWTVerifier(secret, issuer string) Verifier {
	return &jwtVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *jwtVerifier) Verify(tokenString string) (model.Identity, error) {
	if tokenString == "" {
		return model.Identity{}, apperrors.Unauthorized("Missing identity token")
	}

	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, apperrors.TokenExpired()
		}
		return model.Identity{}, apperrors.InvalidToken("Identity token validation failed").WithCause(err)
	}
	if !token.Valid {
		return model.Identity{}, apperrors.InvalidToken("Identity token is not valid")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return model.Identity{}, apperrors.InvalidToken("Identity token has a malformed subject")
	}

	kind := model.IdentityKind(claims.Kind)
	if !kind.Valid() {
		// Intermediate tokens (registration, password reset) carry other
		// kinds and are not usable for chat.
		return model.Identity{}, apperrors.InvalidToken("Identity token is not usable for chat")
	}

	return model.Identity{ID: id, Kind: kind}, nil
}

func (v *jwtVerifier) keyFunc(token *jwt.Token) (any, error) {
	return v.secret, nil
}

// SignIdentityToken mints a token the way the identity service does. Used by
// tests and local tooling.
func SignIdentityToken(secret, issuer string, identity model.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.ID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: string(identity.Kind),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
