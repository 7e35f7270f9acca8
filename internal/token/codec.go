// Package token creates and verifies the two bearer token kinds used by
// the builder authorization flow: signed access tokens and encrypted code
// tokens. Both kinds are opaque strings to every other package.
package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

const cipherKeyLen = 32

// AccessTokenPayload is carried by signed access tokens.
type AccessTokenPayload struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

// CodeTokenPayload is carried by encrypted code tokens. TokenID feeds the
// consumed-code guard at the token endpoint.
type CodeTokenPayload struct {
	UserID        string `json:"userId"`
	ProjectID     string `json:"projectId"`
	CodeChallenge string `json:"codeChallenge"`
	TokenID       string `json:"-"`
}

type codeClaims struct {
	UserID        string `json:"userId"`
	ProjectID     string `json:"projectId"`
	CodeChallenge string `json:"codeChallenge"`
}

// Codec signs, encrypts, and verifies tokens for a fixed issuer.
type Codec struct {
	issuer string
}

// NewCodec constructs a codec issuing tokens under the given issuer claim.
func NewCodec(issuer string) *Codec {
	return &Codec{issuer: issuer}
}

// CreateAccessToken builds a signed token with standard claims and the
// payload embedded. Signing is HS256 keyed by secret.
func (c *Codec) CreateAccessToken(payload AccessTokenPayload, secret string, maxAge time.Duration) (string, error) {
	return c.sign(payload.UserID, payload.ProjectID, "", payload, secret, maxAge)
}

// ReadAccessToken verifies signature and expiry. It returns nil for any
// invalid, expired, or malformed token; callers cannot distinguish why a
// token failed.
func (c *Codec) ReadAccessToken(raw, secret string) *AccessTokenPayload {
	var payload AccessTokenPayload
	if !c.verify(raw, secret, &payload) {
		return nil
	}
	if payload.UserID == "" || payload.ProjectID == "" {
		return nil
	}
	return &payload
}

// CreateCodeToken builds a signed token like CreateAccessToken, then
// encrypts it so the browser that relays the code in the redirect URL can
// neither inspect nor tamper with the embedded PKCE challenge. The result
// is base64url(IV || ciphertext).
func (c *Codec) CreateCodeToken(payload CodeTokenPayload, secret string, maxAge time.Duration) (string, error) {
	claims := codeClaims{
		UserID:        payload.UserID,
		ProjectID:     payload.ProjectID,
		CodeChallenge: payload.CodeChallenge,
	}
	signed, err := c.sign(payload.UserID, payload.ProjectID, payload.TokenID, claims, secret, maxAge)
	if err != nil {
		return "", err
	}
	return encrypt(signed, secret)
}

// ReadCodeToken decrypts and then verifies the inner signed token exactly
// as ReadAccessToken does. Any decryption, signature, or expiry failure
// yields nil.
func (c *Codec) ReadCodeToken(raw, secret string) *CodeTokenPayload {
	signed, err := decrypt(raw, secret)
	if err != nil {
		return nil
	}
	var claims codeClaims
	var std gojwt.Claims
	if !c.verifyClaims(signed, secret, &std, &claims) {
		return nil
	}
	if claims.UserID == "" || claims.ProjectID == "" || claims.CodeChallenge == "" {
		return nil
	}
	return &CodeTokenPayload{
		UserID:        claims.UserID,
		ProjectID:     claims.ProjectID,
		CodeChallenge: claims.CodeChallenge,
		TokenID:       std.ID,
	}
}

func (c *Codec) sign(userID, projectID, tokenID string, custom any, secret string, maxAge time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte(secret)},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Issuer:   c.issuer,
		Subject:  fmt.Sprintf("%s:%s", userID, projectID),
		ID:       tokenID,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(maxAge)),
	}

	raw, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return raw, nil
}

func (c *Codec) verify(raw, secret string, custom any) bool {
	var std gojwt.Claims
	return c.verifyClaims(raw, secret, &std, custom)
}

func (c *Codec) verifyClaims(raw, secret string, std *gojwt.Claims, custom any) bool {
	parsed, err := gojwt.ParseSigned(raw, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return false
	}
	if err := parsed.Claims([]byte(secret), std, custom); err != nil {
		return false
	}
	// Zero leeway: a token expired by a millisecond is expired.
	expected := gojwt.Expected{Issuer: c.issuer, Time: time.Now()}
	return std.ValidateWithLeeway(expected, 0) == nil
}

// normalizeKey deterministically truncates or zero-pads a secret to the
// cipher key length. This is a deployment convenience, not a KDF;
// operators still need high-entropy secrets.
func normalizeKey(secret string, length int) []byte {
	raw := []byte(secret)
	if len(raw) == length {
		return raw
	}
	if len(raw) > length {
		return raw[:length]
	}
	padded := make([]byte, length)
	copy(padded, raw)
	return padded
}

func encrypt(plaintext, secret string) (string, error) {
	block, err := aes.NewCipher(normalizeKey(secret, cipherKeyLen))
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := gcm.Seal(iv, iv, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func decrypt(encoded, secret string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	block, err := aes.NewCipher(normalizeKey(secret, cipherKeyLen))
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("new gcm: %w", err)
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("token too short")
	}
	plaintext, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plaintext), nil
}
