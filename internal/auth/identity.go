package auth

import (
	appErr "pairprep/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the local user as carried in the access token.
type Identity struct {
	UserID   string
	Username string
}

// identityClaims are the private claims the platform embeds in its tokens.
type identityClaims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// IdentityFromToken extracts the user id and display name from an access
// token. The client holds no signing secret, so claims are read without
// signature verification; the backend remains the authority on every call.
func IdentityFromToken(token string) (Identity, error) {
	if token == "" {
		return Identity{}, appErr.New(appErr.TokenMissing)
	}

	var claims identityClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Identity{}, appErr.Wrap(err, appErr.TokenInvalid)
	}

	if claims.Subject == "" {
		return Identity{}, appErr.New(appErr.TokenInvalid).WithMessage("token has no subject claim")
	}
	username := claims.DisplayName
	if username == "" {
		username = claims.Username
	}
	if username == "" {
		username = claims.Subject
	}
	return Identity{UserID: claims.Subject, Username: username}, nil
}
