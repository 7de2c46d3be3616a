// Package auth verifies Telegram Mini App init data and resolves the caller
// identity for a request.
package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/balansai/finance-miniapp/internal/domain"
)

const (
	hashField = "hash"
	userField = "user"

	// webAppDataKey is the HMAC key used to derive the signing secret from the bot token.
	webAppDataKey = "WebAppData"
)

// Validator checks init-data signatures against a bot token.
type Validator struct {
	secret []byte
}

// NewValidator derives the signing secret from botToken.
func NewValidator(botToken string) *Validator {
	return &Validator{secret: deriveSecret(botToken)}
}

// Validate verifies initData and returns the caller identity. Every failure
// wraps domain.ErrUnauthenticated.
func (v *Validator) Validate(initData string) (*domain.Identity, error) {
	fields, err := ParseFields(initData)
	if err != nil {
		return nil, err
	}

	supplied, ok := fields[hashField]
	if !ok {
		return nil, fmt.Errorf("%w: missing hash field", domain.ErrUnauthenticated)
	}
	delete(fields, hashField)

	expected := signWithSecret(v.secret, CheckString(fields))
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return nil, fmt.Errorf("%w: signature mismatch", domain.ErrUnauthenticated)
	}

	userID, err := userIDFromFields(fields)
	if err != nil {
		return nil, err
	}

	return &domain.Identity{UserID: userID, Fields: fields, Verified: true}, nil
}

// ParseUnverified extracts the identity without checking the signature.
// Only the relaxed-mode resolver calls this.
func ParseUnverified(initData string) (*domain.Identity, error) {
	fields, err := ParseFields(initData)
	if err != nil {
		return nil, err
	}
	delete(fields, hashField)

	userID, err := userIDFromFields(fields)
	if err != nil {
		return nil, err
	}
	return &domain.Identity{UserID: userID, Fields: fields, Verified: false}, nil
}

// ParseFields percent-decodes the whole payload and splits it into fields.
// Pairs without '=' are ignored; a repeated key keeps its last value.
func ParseFields(initData string) (map[string]string, error) {
	decoded, err := url.PathUnescape(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", domain.ErrUnauthenticated, err)
	}

	fields := make(map[string]string)
	for _, pair := range strings.Split(decoded, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

// CheckString renders fields as the canonical data-check string: sorted
// key=value lines joined by '\n'. The hash field must already be removed.
func CheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}
	return strings.Join(lines, "\n")
}

// Sign computes the hex signature for fields under botToken.
func Sign(fields map[string]string, botToken string) string {
	return signWithSecret(deriveSecret(botToken), CheckString(fields))
}

// Encode renders fields plus their signature as a query-encoded init-data string.
func Encode(fields map[string]string, botToken string) string {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set(hashField, Sign(fields, botToken))
	// url.Values encodes spaces as '+', which a path unescape would keep literally.
	return strings.ReplaceAll(values.Encode(), "+", "%20")
}

func deriveSecret(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

func signWithSecret(secret []byte, checkString string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	return hex.EncodeToString(mac.Sum(nil))
}

type webAppUser struct {
	ID json.Number `json:"id"`
}

func userIDFromFields(fields map[string]string) (int64, error) {
	raw, ok := fields[userField]
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: missing user field", domain.ErrUnauthenticated)
	}

	user, err := decodeUser(raw)
	if err != nil {
		// the user object may arrive double-encoded
		unescaped, uerr := url.QueryUnescape(raw)
		if uerr != nil {
			return 0, fmt.Errorf("%w: malformed user field: %v", domain.ErrUnauthenticated, err)
		}
		if user, err = decodeUser(unescaped); err != nil {
			return 0, fmt.Errorf("%w: malformed user field: %v", domain.ErrUnauthenticated, err)
		}
	}

	id, err := user.ID.Int64()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: user id %q is not a positive integer", domain.ErrUnauthenticated, user.ID)
	}
	return id, nil
}

func decodeUser(raw string) (*webAppUser, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var u webAppUser
	if err := dec.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
