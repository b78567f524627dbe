package tokens

import "github.com/golang-jwt/jwt/v5"

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the signed payload: sub, username, kind, iat, exp, jti.
type Claims struct {
	Username string `json:"username"`
	Kind     Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Principal is the identity a token is minted for.
type Principal struct {
	ID       string
	Username string
}
