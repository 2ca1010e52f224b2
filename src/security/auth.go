package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smalcash/backend/src/config"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// AuthService gates the admin view behind the shared register PIN. A valid
// PIN yields a short-lived JWT for the admin endpoints.
type AuthService struct {
	JWTSecret string
	pinHash   string
}

func NewAuthService(secret, adminPIN string) (*AuthService, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPIN), bcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		JWTSecret: secret,
		pinHash:   string(hash),
	}, nil
}

// VerifyPIN compares the supplied PIN against the configured admin PIN.
func (a *AuthService) VerifyPIN(pin string) error {
	return bcrypt.CompareHashAndPassword([]byte(a.pinHash), []byte(pin))
}

func (a *AuthService) GenerateToken(registerID string) (string, error) {
	if config.Cfg == nil {
		return "", errors.New("configuration not loaded, cannot determine token expiry")
	}
	claims := jwt.MapClaims{
		"sub":   "admin",
		"kasse": registerID,
		"exp":   time.Now().Add(config.Cfg.AdminTokenExpiry).Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

func (a *AuthService) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.JWTSecret), nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		sub, ok := claims["sub"].(string)
		if !ok {
			return "", errors.New("invalid token: 'sub' claim missing or not a string")
		}
		return sub, nil
	}

	return "", errors.New("invalid token")
}
