package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const hmacSecret = "WjdwZUh2dWJGdFB1UWRybg=="

type ExpireTime int

const (
	AWeek  ExpireTime = 604800
	ADay   ExpireTime = 86400
	AnHour ExpireTime = 3600
)

// Claims is the internal session token minted after the identity
// provider confirms a sign-in.
type Claims struct {
	ID  string `json:"id"`
	Usr string `json:"usr"`
	Eml string `json:"eml"`
	Cmd string `json:"cmd"`
	jwt.StandardClaims
}

func (c *Claims) GetUID() string {
	return c.ID
}

func (c *Claims) GetName() string {
	return c.Usr
}

func (c *Claims) GetEmail() string {
	return c.Eml
}

func (c *Claims) GetCmd() string {
	return c.Cmd
}

func (c *Claims) IsExpired() bool {
	return time.Now().Unix() > c.ExpiresAt
}

// CreateJWTToken generates a signed session token for the given user.
func CreateJWTToken(id, name, email string) (string, error) {
	return CreateJWTWithExpire(id, name, email, "Login", ADay)
}

func CreateJWTWithExpire(id, name, email, cmd string, expired ExpireTime) (string, error) {
	claims := &Claims{
		ID:  id,
		Usr: name,
		Eml: email,
		Cmd: cmd,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Unix() + int64(expired),
			IssuedAt:  time.Now().Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(hmacSecret))
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(hmacSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
