package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
	TokenTypeKiosk  TokenType = "kiosk"
)

const (
	issuer         = "chargeshare-auth"
	defaultAccess  = time.Hour
	defaultKiosk   = 30 * 24 * time.Hour
	audienceAPI    = "api-access"
	audienceKiosks = "kiosk-callbacks"
)

// UserClaims defines the standard claims for our application. Kiosk tokens
// carry the kiosk serial instead of a user.
type UserClaims struct {
	UserID      int64     `json:"user_id,omitempty"`
	Email       string    `json:"email,omitempty"`
	KioskSerial string    `json:"kiosk_serial,omitempty"`
	Type        TokenType `json:"type"`
	Roles       []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type TokenManager interface {
	GenerateAccessToken(userID int64, email string, roles []string) (string, error)
	GenerateKioskToken(kioskSerial string) (string, error)
	ValidateToken(tokenString string) (*UserClaims, error)
}

type tokenManager struct {
	secret    []byte
	accessTTL time.Duration
	kioskTTL  time.Duration
	now       func() time.Time
}

// NewTokenManager returns an HS256 token manager. A zero ttl selects the default.
func NewTokenManager(secret string, accessTTL, kioskTTL time.Duration) TokenManager {
	if accessTTL == 0 {
		accessTTL = defaultAccess
	}
	if kioskTTL == 0 {
		kioskTTL = defaultKiosk
	}
	return &tokenManager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		kioskTTL:  kioskTTL,
		now:       time.Now,
	}
}

func (m *tokenManager) GenerateAccessToken(userID int64, email string, roles []string) (string, error) {
	now := m.now()
	claims := UserClaims{
		UserID: userID,
		Email:  email,
		Type:   TokenTypeAccess,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceAPI},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) GenerateKioskToken(kioskSerial string) (string, error) {
	now := m.now()
	claims := UserClaims{
		KioskSerial: kioskSerial,
		Type:        TokenTypeKiosk,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   kioskSerial,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.kioskTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceKiosks},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	switch claims.Type {
	case TokenTypeAccess:
		if claims.UserID == 0 && claims.Subject != "" {
			uid, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				return nil, ErrInvalidToken
			}
			claims.UserID = uid
		}
		if claims.UserID <= 0 {
			return nil, ErrInvalidToken
		}
	case TokenTypeKiosk:
		if claims.KioskSerial == "" {
			return nil, ErrInvalidToken
		}
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
