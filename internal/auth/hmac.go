// Package auth verifies HS256-signed JWTs against a shared secret. Token
// issuance lives with the identity service; only verification happens here.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification failure modes. Callers normally just log these: any error
// from Resolve means the connection proceeds anonymous.
var (
	ErrNoToken     = errors.New("auth: no token supplied")
	ErrNoSecret    = errors.New("auth: resolver has no signing secret")
	ErrMalformed   = errors.New("auth: malformed token")
	ErrSignature   = errors.New("auth: signature mismatch")
	ErrExpired     = errors.New("auth: token expired")
	ErrNotYetValid = errors.New("auth: token not yet valid")
)

// HMACResolver verifies HS256 JWTs. The zero secret is legal and makes every
// resolution fail with ErrNoSecret, which keeps all connections anonymous.
type HMACResolver struct {
	secret []byte
	now    func() time.Time
}

// NewHMACResolver builds a resolver around the shared signing secret.
func NewHMACResolver(secret []byte) *HMACResolver {
	return &HMACResolver{secret: secret, now: time.Now}
}

type tokenClaims struct {
	Sub  string `json:"sub"`
	Role string `json:"role"`
	Name string `json:"name"`
	Exp  int64  `json:"exp"`
	Nbf  int64  `json:"nbf"`
}

// Resolve verifies the token signature and validity window, then extracts
// the principal: "sub" becomes the user id, "role" and "name" are optional.
func (r *HMACResolver) Resolve(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrNoToken
	}
	if len(r.secret) == 0 {
		return Principal{}, ErrNoSecret
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Principal{}, ErrMalformed
	}

	if err := r.checkHeader(parts[0]); err != nil {
		return Principal{}, err
	}
	if err := r.checkSignature(parts[0]+"."+parts[1], parts[2]); err != nil {
		return Principal{}, err
	}

	claims, err := decodeClaims(parts[1])
	if err != nil {
		return Principal{}, err
	}
	if err := r.checkWindow(claims); err != nil {
		return Principal{}, err
	}
	if claims.Sub == "" {
		return Principal{}, fmt.Errorf("%w: missing sub claim", ErrMalformed)
	}

	return Principal{UserID: claims.Sub, Role: claims.Role, Name: claims.Name}, nil
}

func (r *HMACResolver) checkHeader(encoded string) error {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if header.Alg != "HS256" {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrMalformed, header.Alg)
	}
	return nil
}

func (r *HMACResolver) checkSignature(signingInput, encoded string) error {
	got, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}

	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(signingInput))
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrSignature
	}
	return nil
}

func decodeClaims(encoded string) (tokenClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return tokenClaims{}, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}
	var claims tokenClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return tokenClaims{}, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}
	return claims, nil
}

func (r *HMACResolver) checkWindow(claims tokenClaims) error {
	now := r.now().Unix()
	if claims.Exp != 0 && now >= claims.Exp {
		return ErrExpired
	}
	if claims.Nbf != 0 && now < claims.Nbf {
		return ErrNotYetValid
	}
	return nil
}
