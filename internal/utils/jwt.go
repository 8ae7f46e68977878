package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// --- JWT Helpers ---

// GenerateBattleToken signs a token tying a user to one battle. Clients
// present it on the completion and watch endpoints.
func GenerateBattleToken(battleID, userID string, jwtSecret []byte) (string, error) {
	claims := jwt.MapClaims{
		"battleId": battleID,
		"userId":   userID,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseBattleToken verifies the signature and returns the battle and user IDs.
func ParseBattleToken(tokenString string, jwtSecret []byte) (battleID, userID string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid token claims")
	}

	battleID, _ = claims["battleId"].(string)
	userID, _ = claims["userId"].(string)
	if battleID == "" || userID == "" {
		return "", "", errors.New("token missing battle or user id")
	}
	return battleID, userID, nil
}
