package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"cvlm/internal/config"
)

const tokenTypeAccess = "access"

// ErrSigningDisabled 在未加载私钥时签发令牌返回。
var ErrSigningDisabled = errors.New("token signing is disabled: private key not loaded")

// AuthService 负责 JWT 的签发与校验。
// API 进程只持有公钥；运维 CLI 额外加载私钥用于签发。
type AuthService struct {
	privateKey     *rsa.PrivateKey
	publicKey      *rsa.PublicKey
	issuer         string
	accessTokenTTL time.Duration
	now            func() time.Time
}

// TokenClaims 表示 JWT 中的业务字段，便于中间件读取用户信息。
type TokenClaims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥并构造服务实例，privateKeyPEM 可以为空。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, issuer string, accessTTL time.Duration) (*AuthService, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	var privateKey *rsa.PrivateKey
	if len(privateKeyPEM) > 0 {
		privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa private key: %w", err)
		}
	}

	return &AuthService{
		privateKey:     privateKey,
		publicKey:      publicKey,
		issuer:         issuer,
		accessTokenTTL: accessTTL,
		now:            time.Now,
	}, nil
}

// LoadFromConfig 从配置的路径读取密钥。withPrivateKey 为 false 时只读公钥。
func LoadFromConfig(cfg config.AuthConfig, withPrivateKey bool) (*AuthService, error) {
	publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", cfg.PublicKeyPath, err)
	}
	var privatePEM []byte
	if withPrivateKey {
		privatePEM, err = os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", cfg.PrivateKeyPath, err)
		}
	}
	return NewAuthService(privatePEM, publicPEM, cfg.Issuer, cfg.AccessTokenTTL)
}

// IssueAccessToken 为用户签发访问令牌，返回令牌及其过期时间。
func (s *AuthService) IssueAccessToken(userID, email string) (string, time.Time, error) {
	if s.privateKey == nil {
		return "", time.Time{}, ErrSigningDisabled
	}
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := s.now()
	expires := now.Add(s.accessTokenTTL)
	claims := TokenClaims{
		UserID:    userID,
		Email:     email,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken 解析并验证访问令牌。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// AccessTokenTTL 暴露访问令牌有效期。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}
