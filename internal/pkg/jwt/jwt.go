package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"repo-migrator/internal/pkg/config"
	"repo-migrator/pkg/constants"
	pkgErrors "repo-migrator/pkg/errors"
)

// OperatorClaims 运维接口调用方的 Claims
type OperatorClaims struct {
	Operator string `json:"operator"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Manager 签发与校验访问 Token
type Manager struct {
	secret []byte
	expire time.Duration
	now    func() time.Time
}

// NewManager 由配置构造，secret 为空时拒绝
func NewManager(cfg config.JWTConfig) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, pkgErrors.New(pkgErrors.CodeValidationError, "未配置 auth.jwt.secret")
	}
	expire := time.Duration(cfg.AccessTokenExpire) * time.Second
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	return &Manager{secret: []byte(cfg.Secret), expire: expire, now: time.Now}, nil
}

// GenerateAccessToken 生成访问Token
func (m *Manager) GenerateAccessToken(operator string) (string, error) {
	now := m.now()
	claims := OperatorClaims{
		Operator: operator,
		Type:     constants.JWTTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    constants.JWTIssuer,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并校验Token
func (m *Manager) ParseToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithIssuer(constants.JWTIssuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgErrors.ErrTokenExpired
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeUnauthorized, "解析Token失败", err)
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid || claims.Type != constants.JWTTypeAccess {
		return nil, pkgErrors.ErrInvalidToken
	}
	return claims, nil
}
