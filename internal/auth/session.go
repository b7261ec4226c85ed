package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jason-s-yu/parlor/internal/config"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL of 0 issues tokens without an exp claim.
	tokenTTL time.Duration
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrKeyMismatch  = errors.New("public key does not belong to the private key")
)

// Init generates a fresh ed25519 key pair. Tokens issued before a restart become invalid.
func Init(ttl time.Duration) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generate ed25519 key pair: %w", err)
	}
	publicKey, privateKey, tokenTTL = pub, priv, ttl
	return nil
}

// InitFromPath loads a PEM-encoded ed25519 key pair (PKCS#8 private, PKIX public), so tokens
// survive restarts and can be verified by every instance sharing the pair.
func InitFromPath(privatePath, publicPath string, ttl time.Duration) error {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}
	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	k, err := jwt.ParseEdPrivateKeyFromPEM(privPEM)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	pk, err := jwt.ParseEdPublicKeyFromPEM(pubPEM)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	priv, ok := k.(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is %T, not ed25519", k)
	}
	pub, ok := pk.(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("public key is %T, not ed25519", pk)
	}
	if !pub.Equal(priv.Public()) {
		return ErrKeyMismatch
	}
	privateKey, publicKey, tokenTTL = priv, pub, ttl
	return nil
}

// Configure sets up signing keys and the password hash cost from c. Keys come from disk when
// JWT_PRIVATE_KEY_PATH is set and are generated otherwise.
func Configure(c *config.Config) error {
	ttl, err := c.TokenExpiry()
	if err != nil {
		return err
	}
	SetHashParams(NewParams(uint32(c.Argon2MemoryKiB), uint32(c.Argon2Iterations)))
	if c.JWTPrivateKeyPath != "" {
		return InitFromPath(c.JWTPrivateKeyPath, c.JWTPublicKeyPath, ttl)
	}
	return Init(ttl)
}

// CreateJWT issues a token whose subject is the user id.
func CreateJWT(userID uuid.UUID) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  userID.String(),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if tokenTTL != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(tokenTTL))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns the user id it was issued for.
func AuthenticateJWT(tokenString string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}
