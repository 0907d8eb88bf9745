package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"ArticlePipeline/internal/domain"
)

const ownerContextKey = "ownerID"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid bearer token")
)

// Authenticator verifies HS256 bearer tokens; the subject claim is the owner id.
type Authenticator struct {
	secret []byte
	issuer string
	logger *slog.Logger
}

// NewAuthenticator builds the verifier. An empty secret denies every request.
func NewAuthenticator(secret, issuer string, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if secret == "" {
		logger.Warn("JWT secret not set, API will deny all requests")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger}
}

// RequireOwner rejects requests without a valid token and stores the owner
// id on the echo context.
func (a *Authenticator) RequireOwner() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			owner, err := a.owner(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				a.logger.Debug("request rejected", "path", c.Path(), "error", err)
				return domain.ErrUnauthorized
			}
			c.Set(ownerContextKey, owner)
			return next(c)
		}
	}
}

func (a *Authenticator) owner(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: secret not configured", errInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

func ownerFrom(c echo.Context) string {
	owner, _ := c.Get(ownerContextKey).(string)
	return owner
}
