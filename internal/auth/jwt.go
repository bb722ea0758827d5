package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distingue os três usos de token; um tipo nunca é aceito no lugar de outro.
type TokenType string

const (
	TokenAccess   TokenType = "access"
	TokenRefresh  TokenType = "refresh"
	TokenRecovery TokenType = "recovery"
)

var (
	ErrInvalidToken   = errors.New("token inválido")
	ErrWrongTokenType = errors.New("tipo de token incorreto")
)

// Claims representa as informações presentes nos tokens.
type Claims struct {
	Role     string    `json:"role,omitempty"`
	PublicID string    `json:"publicId"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenConfig reúne segredos e validades.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RecoveryTTL   time.Duration
	Issuer        string
}

// TokenManager emite e valida tokens HS256. Acesso e recuperação usam o
// segredo principal; refresh usa segredo próprio.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	recoveryTTL   time.Duration
	issuer        string
	now           func() time.Time
}

func NewTokenManager(cfg TokenConfig) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		recoveryTTL:   cfg.RecoveryTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
}

// WithClock troca o relógio usado na emissão e validação.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	cp := *m
	cp.now = now
	return &cp
}

func (m *TokenManager) RefreshTTL() time.Duration  { return m.refreshTTL }
func (m *TokenManager) RecoveryTTL() time.Duration { return m.recoveryTTL }

// IssueAccess cria o token de acesso.
func (m *TokenManager) IssueAccess(subject uuid.UUID, role, publicID string) (string, error) {
	return m.sign(m.accessSecret, TokenAccess, subject.String(), role, publicID, m.accessTTL)
}

// IssueRefresh cria o token de refresh, assinado com o segredo de refresh.
func (m *TokenManager) IssueRefresh(subject uuid.UUID, role, publicID string) (string, error) {
	return m.sign(m.refreshSecret, TokenRefresh, subject.String(), role, publicID, m.refreshTTL)
}

// IssueRecovery cria o token curto de redefinição de senha, que carrega apenas o id público.
func (m *TokenManager) IssueRecovery(publicID string) (string, error) {
	return m.sign(m.accessSecret, TokenRecovery, "", "", publicID, m.recoveryTTL)
}

func (m *TokenManager) ParseAccess(token string) (*Claims, error) {
	return m.parse(m.accessSecret, TokenAccess, token)
}

func (m *TokenManager) ParseRefresh(token string) (*Claims, error) {
	return m.parse(m.refreshSecret, TokenRefresh, token)
}

func (m *TokenManager) ParseRecovery(token string) (*Claims, error) {
	return m.parse(m.accessSecret, TokenRecovery, token)
}

func (m *TokenManager) sign(secret []byte, typ TokenType, subject, role, publicID string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		Role:     role,
		PublicID: publicID,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parse verifica assinatura, expiração e tipo.
func (m *TokenManager) parse(secret []byte, typ TokenType, tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// SubjectID converte o sub do token para uuid.
func (c *Claims) SubjectID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
