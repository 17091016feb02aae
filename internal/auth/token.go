package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/observer/tandem/internal/domain"
)

// PurposeAnonymousWatercooler marks short-lived tokens handed to visitors
// joining a team watercooler without an account.
const PurposeAnonymousWatercooler = "anonymous_watercooler"

const (
	bearerTTL    = 365 * 24 * time.Hour
	anonymousTTL = 10 * time.Minute
)

// BearerClaims represents the JWT claims carried by API bearer tokens.
type BearerClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenService handles JWT creation and validation
type TokenService struct {
	signingKey []byte
}

// NewTokenService creates a new token service
func NewTokenService(signingKey string) (*TokenService, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("signing key must be at least 32 characters")
	}
	return &TokenService{signingKey: []byte(signingKey)}, nil
}

// GenerateBearerToken creates a long-lived API token for the given email
func (s *TokenService) GenerateBearerToken(email string) (string, error) {
	claims := BearerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(bearerTTL)),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ValidateBearerToken parses and validates an API bearer token
func (s *TokenService) ValidateBearerToken(tokenString string) (*BearerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BearerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*BearerClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	if claims.Email == "" {
		return nil, errors.New("token has no email claim")
	}

	return claims, nil
}

// GenerateAnonymousRoomToken creates a short-lived token that lets an
// anonymous visitor redeem a watercooler redirect for the given team.
func (s *TokenService) GenerateAnonymousRoomToken(teamID int64) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"team_id": teamID,
		"purpose": PurposeAnonymousWatercooler,
		"iat":     now.Unix(),
		"exp":     now.Add(anonymousTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ValidateAnonymousRoomToken checks an anonymous watercooler token and
// returns the team it grants access to.
func (s *TokenService) ValidateAnonymousRoomToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, domain.ErrTokenExpired
		}
		return 0, domain.ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, domain.ErrTokenInvalid
	}

	if purpose, _ := claims["purpose"].(string); purpose != PurposeAnonymousWatercooler {
		return 0, domain.ErrTokenInvalid
	}

	teamID, ok := claims["team_id"].(float64)
	if !ok {
		return 0, domain.ErrTokenInvalid
	}

	return int64(teamID), nil
}
