// Package qrtoken encodes and decodes the QR payload that binds one
// assignment instance to its coupon and user. Tokens are HS256-signed JWTs;
// the signing key is a process-wide secret, rotatable through the key
// version carried in the token header. The codec is pure: it never checks
// business validity, only structure and integrity.
package qrtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const keyVersionHeader = "kid"

// Payload is the decoded content of a QR token.
type Payload struct {
	UserCouponID uuid.UUID
	CouponID     uuid.UUID
	UserID       uuid.UUID
	IssuedAt     time.Time
}

type claims struct {
	UserCouponID string `json:"ucp"`
	CouponID     string `json:"cpn"`
	UserID       string `json:"usr"`
	IssuedAtUnix int64  `json:"iat"`
}

// Valid implements jwt.Claims. Structural checks only; expiry and status
// belong to the redemption state machine.
func (c claims) Valid() error {
	if c.UserCouponID == "" || c.CouponID == "" || c.UserID == "" {
		return fmt.Errorf("missing claim")
	}
	return nil
}

// Codec signs and verifies QR tokens against a versioned key ring.
type Codec struct {
	keys          map[string][]byte
	activeVersion string
}

// NewCodec builds a codec from a key ring and the version used for signing.
// Old versions stay in the ring so tokens issued before a rotation keep
// verifying.
func NewCodec(keys map[string][]byte, activeVersion string) (*Codec, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("qrtoken: empty key ring")
	}
	if _, ok := keys[activeVersion]; !ok {
		return nil, fmt.Errorf("qrtoken: active version %q not in key ring", activeVersion)
	}
	for v, k := range keys {
		if len(k) < 16 {
			return nil, fmt.Errorf("qrtoken: key %q shorter than 16 bytes", v)
		}
	}
	return &Codec{keys: keys, activeVersion: activeVersion}, nil
}

// Encode produces the opaque token for one assignment instance.
// Deterministic for a given input and signing key.
func (c *Codec) Encode(userCouponID, couponID, userID uuid.UUID, issuedAt time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserCouponID: userCouponID.String(),
		CouponID:     couponID.String(),
		UserID:       userID.String(),
		IssuedAtUnix: issuedAt.Unix(),
	})
	tok.Header[keyVersionHeader] = c.activeVersion

	signed, err := tok.SignedString(c.keys[c.activeVersion])
	if err != nil {
		return "", fmt.Errorf("sign qr token: %w", err)
	}
	return signed, nil
}

// Decode recovers the payload and verifies the integrity tag. Any malformed
// structure, unknown key version or tag mismatch yields an error; callers
// surface it as an invalid-token rejection.
func (c *Codec) Decode(token string) (*Payload, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (interface{}, error) {
		version, _ := t.Header[keyVersionHeader].(string)
		key, ok := c.keys[version]
		if !ok {
			return nil, fmt.Errorf("unknown key version %q", version)
		}
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse qr token: %w", err)
	}

	ucID, err := uuid.Parse(cl.UserCouponID)
	if err != nil {
		return nil, fmt.Errorf("parse user coupon id: %w", err)
	}
	cpID, err := uuid.Parse(cl.CouponID)
	if err != nil {
		return nil, fmt.Errorf("parse coupon id: %w", err)
	}
	uID, err := uuid.Parse(cl.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	return &Payload{
		UserCouponID: ucID,
		CouponID:     cpID,
		UserID:       uID,
		IssuedAt:     time.Unix(cl.IssuedAtUnix, 0).UTC(),
	}, nil
}
