package state

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for any state token that fails decoding or
// signature verification. Callers never learn which check failed.
var ErrInvalid = errors.New("oauth state invalid")

// Payload is the signed state content carried through the identity provider.
// The nonce keys the paired server-side entry (see Store).
type Payload struct {
	TenantDomain string `json:"t"`
	ReturnURL    string `json:"r"`
	Nonce        string `json:"n"`
}

// Codec signs and verifies tamper-evident OAuth state tokens. The state
// round-trips through a third-party provider, so validity cannot rest on
// server memory alone: the HMAC detects a value edited in transit even
// though the in-memory store also holds the tenant binding.
type Codec struct {
	secret       []byte
	localDomains []string
}

type envelope struct {
	Payload   string `json:"p"`
	Signature string `json:"s"`
}

// NewCodec constructs a Codec. localDomains are served over plain http when
// building absolute return URLs.
func NewCodec(secret string, localDomains []string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("state secret missing")
	}
	return &Codec{secret: []byte(secret), localDomains: localDomains}, nil
}

// Sign builds the absolute return URL, serializes the payload with a fresh
// nonce, and wraps it with an HMAC-SHA256 signature. The whole envelope is
// base64url-encoded into one flat token: some providers reject state values
// containing punctuation, so no delimiter may survive the encoding.
func (c *Codec) Sign(tenantDomain, returnPath string) (token string, nonce string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate state nonce: %w", err)
	}
	nonce = base64.RawURLEncoding.EncodeToString(buf)

	payload, err := json.Marshal(Payload{
		TenantDomain: tenantDomain,
		ReturnURL:    c.AbsoluteReturnURL(tenantDomain, returnPath),
		Nonce:        nonce,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal state payload: %w", err)
	}

	wrapped, err := json.Marshal(envelope{
		Payload:   string(payload),
		Signature: c.sign(payload),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal state envelope: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(wrapped), nonce, nil
}

// Verify reverses the encoding, recomputes the HMAC over the embedded
// payload, and compares in constant time. Any failure is ErrInvalid; a
// partially decoded payload is never returned.
func (c *Codec) Verify(token string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalid
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalid
	}
	want, err := hex.DecodeString(env.Signature)
	if err != nil {
		return nil, ErrInvalid
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(env.Payload))
	if !hmac.Equal(mac.Sum(nil), want) {
		return nil, ErrInvalid
	}

	var payload Payload
	if err := json.Unmarshal([]byte(env.Payload), &payload); err != nil {
		return nil, ErrInvalid
	}
	if payload.TenantDomain == "" || payload.ReturnURL == "" {
		return nil, ErrInvalid
	}
	return &payload, nil
}

// AbsoluteReturnURL prepends a scheme and the tenant domain to a return
// path. Identity providers reject relative URLs, so the state always
// carries an absolute one.
func (c *Codec) AbsoluteReturnURL(tenantDomain, returnPath string) string {
	if strings.HasPrefix(returnPath, "http://") || strings.HasPrefix(returnPath, "https://") {
		return returnPath
	}
	if returnPath == "" {
		returnPath = "/"
	}
	if !strings.HasPrefix(returnPath, "/") {
		returnPath = "/" + returnPath
	}
	return c.scheme(tenantDomain) + "://" + tenantDomain + returnPath
}

func (c *Codec) scheme(domain string) string {
	host := domain
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, local := range c.localDomains {
		if host == local || strings.HasSuffix(host, "."+local) {
			return "http"
		}
	}
	return "https"
}

func (c *Codec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
