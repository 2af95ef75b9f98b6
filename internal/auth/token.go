package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devpulse/gateway/internal/config"
)

// AuthFailure reasons.
const (
	ReasonMalformed = "malformed"
	ReasonExpired   = "expired"
	ReasonSignature = "invalid_signature"
	ReasonClaims    = "invalid_claims"
)

// AuthFailure is the typed verification error. Reason feeds the
// auth_failures_total metric label.
type AuthFailure struct {
	Reason string
	Detail string
}

func (f *AuthFailure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("auth failure (%s): %s", f.Reason, f.Detail)
	}
	return fmt.Sprintf("auth failure (%s)", f.Reason)
}

// Verifier validates signed tokens into Principals. It holds only key
// material and performs no I/O.
type Verifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	keyFunc   jwt.Keyfunc
}

// NewVerifier creates a Verifier from the auth configuration. An RSA public
// key takes precedence over the shared secret when both are set.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{issuer: cfg.Issuer}

	if cfg.PublicKey != "" {
		block, _ := pem.Decode([]byte(cfg.PublicKey))
		if block == nil {
			return nil, fmt.Errorf("failed to parse PEM block containing public key")
		}
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not an RSA key")
		}
		v.publicKey = rsaPub
		v.keyFunc = func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.publicKey, nil
		}
		return v, nil
	}

	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret or public key is required")
	}
	v.secret = []byte(cfg.Secret)
	v.keyFunc = func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}
	return v, nil
}

// Verify parses and validates a token string. An empty token yields the
// anonymous principal without error; anything else must verify fully.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return Anonymous(), nil
	}

	token, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, &AuthFailure{Reason: ReasonSignature, Detail: "token is not valid"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &AuthFailure{Reason: ReasonClaims, Detail: "unexpected claims type"}
	}

	if v.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != v.issuer {
			return nil, &AuthFailure{Reason: ReasonClaims, Detail: "invalid issuer"}
		}
	}

	userID := ""
	if sub, _ := claims.GetSubject(); sub != "" {
		userID = sub
	} else if uid, ok := claims["userId"].(string); ok {
		userID = uid
	}
	if userID == "" {
		return nil, &AuthFailure{Reason: ReasonClaims, Detail: "missing subject"}
	}

	name, _ := claims["name"].(string)
	role := RoleDeveloper
	if r, ok := claims["role"].(string); ok {
		role = ParseRole(r)
	}

	teams := map[string]struct{}{}
	if raw, ok := claims["teamIds"].([]interface{}); ok {
		for _, t := range raw {
			if id, ok := t.(string); ok {
				teams[id] = struct{}{}
			}
		}
	}

	return &Principal{
		ID:      userID,
		Name:    name,
		Role:    role,
		TeamIDs: teams,
		Active:  true,
	}, nil
}

// VerifyRequest extracts the credential from the request and verifies it.
// Accepted carriers: Authorization: Bearer header or the token query
// parameter used by WebSocket clients.
func (v *Verifier) VerifyRequest(r *http.Request) (*Principal, error) {
	return v.Verify(ExtractToken(r))
}

// ExtractToken pulls the raw bearer token from a request, or "" if absent.
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			return auth[7:]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func classifyParseError(err error) *AuthFailure {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthFailure{Reason: ReasonExpired, Detail: err.Error()}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &AuthFailure{Reason: ReasonSignature, Detail: err.Error()}
	default:
		return &AuthFailure{Reason: ReasonMalformed, Detail: err.Error()}
	}
}

// GenerateToken signs an HS256 token from the given claims. Test helper.
func (v *Verifier) GenerateToken(claims map[string]interface{}) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("token generation requires an HMAC secret")
	}
	mapClaims := jwt.MapClaims{}
	for k, val := range claims {
		mapClaims[k] = val
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	return token.SignedString(v.secret)
}
