package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject      = "sub"
	claimType         = "typ"
	claimNamespace    = "namespace"
	claimProvider     = "provider"
	operatorTokenType = "operator"
	pipelineTokenType = "pipeline"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// OperatorFromContext extracts the operator subject from JWT claims.
func OperatorFromContext(c echo.Context) (string, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if claimString(claims, claimType) == pipelineTokenType {
		return "", echo.NewHTTPError(http.StatusForbidden, "pipeline tokens cannot access operator endpoints")
	}
	if subject := claimString(claims, claimSubject); subject != "" {
		return subject, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "subject missing")
}

// GenerateToken creates a signed operator JWT.
func GenerateToken(subject, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, fmt.Errorf("subject is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: subject,
		claimType:    operatorTokenType,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	return sign(claims, secret, expiresAt)
}

// PipelineToken holds the claims of the credential forwarded to pipelines
// for one batch.
type PipelineToken struct {
	Namespace string
	Provider  string
}

// GeneratePipelineToken creates a signed JWT for pipeline invocations.
func GeneratePipelineToken(info PipelineToken, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(info.Namespace) == "" {
		return "", time.Time{}, fmt.Errorf("namespace is required")
	}
	if strings.TrimSpace(info.Provider) == "" {
		return "", time.Time{}, fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject:   info.Namespace,
		claimType:      pipelineTokenType,
		claimNamespace: info.Namespace,
		claimProvider:  info.Provider,
		"iat":          now.Unix(),
		"exp":          expiresAt.Unix(),
	}
	return sign(claims, secret, expiresAt)
}

// ParsePipelineToken verifies a pipeline token and returns its claims.
func ParsePipelineToken(tokenString, secret string) (PipelineToken, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return PipelineToken{}, errors.New("token is required")
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return PipelineToken{}, fmt.Errorf("parse pipeline token: %w", err)
	}
	if !token.Valid || claimString(claims, claimType) != pipelineTokenType {
		return PipelineToken{}, errors.New("invalid pipeline token")
	}
	return PipelineToken{
		Namespace: claimString(claims, claimNamespace),
		Provider:  claimString(claims, claimProvider),
	}, nil
}

func sign(claims jwt.MapClaims, secret string, expiresAt time.Time) (string, time.Time, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
