package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/token-ledger/internal/api/problem"
	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 30 * time.Second

var (
	errMissingHeader = errors.New("authorization header required")
	errNotBearer     = errors.New("authorization header is not a bearer token")
	errNoSecret      = errors.New("token secret is not configured")
	errBadToken      = errors.New("invalid token")
	errBadClaims     = errors.New("invalid token claims")
)

// LedgerClaims is the token body. Account is the signing identity; Cosigners
// lets one token prove several identities at once (a payee and the
// authority, say).
type LedgerClaims struct {
	Account   string   `json:"account"`
	Cosigners []string `json:"cosigners,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier turns HS256 bearer tokens into a domain.Authorization.
// Issuer and audience are checked only when set. Tokens must expire.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience = strings.TrimSpace(audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &TokenVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Verify checks an Authorization header value.
func (v *TokenVerifier) Verify(header string) (domain.Authorization, error) {
	if header == "" {
		return domain.Authorization{}, errMissingHeader
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return domain.Authorization{}, errNotBearer
	}
	if len(v.secret) == 0 {
		return domain.Authorization{}, errNoSecret
	}

	claims := &LedgerClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return domain.Authorization{}, fmt.Errorf("%w: %v", errBadToken, err)
	}
	auth, err := claims.authorization()
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("%w: %v", errBadClaims, err)
	}
	return auth, nil
}

// Middleware rejects unsigned requests and stores the proven identities in
// the request context.
func (v *TokenVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, err := v.Verify(r.Header.Get("Authorization"))
		if err != nil {
			writeAuthProblem(w, r, err)
			return
		}
		ctx := withAuthorization(r.Context(), auth)
		if h := holderFromContext(ctx); h != nil {
			h.account = AccountFromContext(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthProblem(w http.ResponseWriter, r *http.Request, err error) {
	status, slug := http.StatusUnauthorized, "auth/invalid-token"
	switch {
	case errors.Is(err, errMissingHeader):
		slug = "auth/authorization-header-required"
	case errors.Is(err, errNotBearer):
		slug = "auth/invalid-token-format"
	case errors.Is(err, errNoSecret):
		status, slug = http.StatusInternalServerError, "auth/misconfigured"
	case errors.Is(err, errBadClaims):
		slug = "auth/invalid-token-claims"
	}
	detail := err.Error()
	if errors.Is(err, errBadToken) {
		// Parser errors can leak validation details.
		detail = errBadToken.Error()
	}
	problem.Write(w, r, status, problem.Type(slug), "", detail)
}

func (c *LedgerClaims) authorization() (domain.Authorization, error) {
	if c.Account == "" {
		return domain.Authorization{}, errors.New("missing account claim")
	}
	if c.Subject != "" && c.Subject != c.Account {
		return domain.Authorization{}, errors.New("subject does not match account")
	}
	names := make([]domain.Name, 0, 1+len(c.Cosigners))
	for _, raw := range append([]string{c.Account}, c.Cosigners...) {
		n := domain.Name(raw)
		if err := n.Validate(); err != nil {
			return domain.Authorization{}, err
		}
		names = append(names, n)
	}
	return domain.NewAuthorization(names...), nil
}
