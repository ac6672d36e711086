/**
 * @description
 * This package signs and verifies payment gateway payloads. Outbound order
 * requests and inbound payment callbacks share the same primitive: an
 * HMAC-SHA256 over a canonical serialization, keyed with the merchant key.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: Standard Go libraries.
 */
package checksum

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under key.
// Identical payload bytes and key always produce the identical signature.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over payload and compares it to signature in
// constant time. Malformed signatures never verify.
func Verify(payload []byte, signature string, key string) bool {
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}

// CanonicalJSON marshals v into the exact bytes that are signed and sent.
// Field order follows the Go struct definition and HTML escaping is disabled so
// that URLs in the payload are sent byte-for-byte as signed.
func CanonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CanonicalParams serializes flat callback parameters: keys sorted
// lexicographically, the literal value "null" treated as empty, and values
// joined with "|". Keys listed in exclude are left out.
func CanonicalParams(params map[string]string, exclude ...string) []byte {
	skip := make(map[string]struct{}, len(exclude))
	for _, key := range exclude {
		skip[key] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		if _, ok := skip[key]; ok {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, key := range keys {
		value := params[key]
		if strings.EqualFold(value, "null") {
			value = ""
		}
		values = append(values, value)
	}
	return []byte(strings.Join(values, "|"))
}
