package authapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"

	types "github.com/desain-gratis/devicehub/types/http"
)

const (
	RoleClient = "client"
	RoleDevice = "device"
	RoleAdmin  = "admin"
)

// Identity is the resolved caller. The dispatch engine never sees it; entity
// key visibility is filtered here, before a subscription is created.
type Identity struct {
	UserID     string
	Role       string
	DeviceGUID string
}

type claims struct {
	UserID     string `json:"user_id,omitempty"`
	Role       string `json:"role,omitempty"`
	DeviceGUID string `json:"device_guid,omitempty"`
	jwt.StandardClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// ParseAuthorizationToken resolves a "Bearer <jwt>" header into an Identity.
func (v *Verifier) ParseAuthorizationToken(authorizationToken string) (Identity, *types.CommonError) {
	token := strings.Split(authorizationToken, " ")
	if len(token) < 2 {
		return Identity{}, &types.CommonError{
			Errors: []types.Error{
				{
					HTTPCode: http.StatusUnauthorized,
					Code:     "INVALID_OR_EMPTY_AUTHORIZATION",
					Message:  "Authorization header is not valid",
				},
			},
		}
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token[1], &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, &types.CommonError{
			Errors: []types.Error{
				{
					HTTPCode: http.StatusUnauthorized,
					Code:     "UNAUTHORIZED",
					Message:  "Token is expired or not valid",
				},
			},
		}
	}

	return Identity{
		UserID:     c.UserID,
		Role:       c.Role,
		DeviceGUID: c.DeviceGUID,
	}, nil
}

// Sign issues a token for the identity; used by provisioning tooling and tests.
func (v *Verifier) Sign(id Identity) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:     id.UserID,
		Role:       id.Role,
		DeviceGUID: id.DeviceGUID,
	})
	return token.SignedString(v.secret)
}

// Allowed reports whether the identity may touch the device's resources.
// Clients and admins see every device; a device only itself.
func (id Identity) Allowed(deviceGUID string) bool {
	switch id.Role {
	case RoleAdmin, RoleClient:
		return true
	case RoleDevice:
		return id.DeviceGUID == deviceGUID
	}
	return false
}
