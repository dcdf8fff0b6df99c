package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/market-shopper/internal/common"
)

// Config configures session token issuance.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	TTL       time.Duration
	ClockSkew time.Duration
	Now       func() time.Time
}

// Issued is a freshly minted session.
type Issued struct {
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service issues and verifies anonymous draft session tokens.
type Service struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
	validator TokenValidator
}

// NewService validates the configuration and builds a Service signing with HS256.
func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("session: secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       ttl,
		clockSkew: skew,
		now:       now,
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: skew,
			Algorithm: jwa.HS256,
		},
	}, nil
}

// Issue mints a new session identifier and its signed token.
func (s *Service) Issue() (Issued, error) {
	id := uuid.NewString()
	now := s.now()
	expiresAt := now.Add(s.ttl)
	builder := jwt.NewBuilder().
		Subject(id).
		JwtID(uuid.NewString()).
		Issuer(s.issuer).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt)
	if s.audience != "" {
		builder = builder.Audience([]string{s.audience})
	}
	token, err := builder.Build()
	if err != nil {
		return Issued{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return Issued{}, err
	}
	return Issued{SessionID: id, Token: string(signed), ExpiresAt: expiresAt}, nil
}

// Parse validates a token and returns the session identifier it carries.
func (s *Service) Parse(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", common.NewAppError("UNAUTHORIZED", "missing session token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid session token", http.StatusUnauthorized, err)
	}
	if algorithm != s.validator.Algorithm {
		return "", common.NewAppError("UNAUTHORIZED", "invalid session token", http.StatusUnauthorized, fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, s.secret), jwt.WithValidate(false))
	if err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid session token", http.StatusUnauthorized, err)
	}
	if err := s.validator.Validate(parsed, algorithm, s.now()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "session expired or invalid", http.StatusUnauthorized, err)
	}
	if _, err := uuid.Parse(parsed.Subject()); err != nil {
		return "", common.NewAppError("UNAUTHORIZED", "invalid session token", http.StatusUnauthorized, err)
	}
	return parsed.Subject(), nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", errors.New("session: token must carry exactly one signature")
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil {
		return "", errors.New("session: token missing protected headers")
	}
	alg := headers.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("session: token has no usable algorithm")
	}
	return alg, nil
}
