package jwtauth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/ggoodman/cognito-jwt-go/autherr"
)

// Header is the subset of the JOSE header the pipeline inspects.
type Header struct {
	KeyID     string `json:"kid,omitempty"`
	Algorithm string `json:"alg,omitempty"`
	Type      string `json:"typ,omitempty"`
}

// Envelope is a structurally decoded, unverified token.
type Envelope struct {
	Header    Header
	Payload   map[string]any
	Signature string
}

// Decode splits and parses a compact token without verifying anything. It
// performs no I/O.
func Decode(tok string) (*Envelope, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, unparseable(map[string]any{"segments": len(parts)})
	}
	for _, p := range parts {
		if p == "" {
			return nil, unparseable(map[string]any{"segments": len(parts)})
		}
	}

	headerJSON, err := decodeSegment(parts[0])
	if err != nil {
		return nil, unparseable(map[string]any{"segment": "header"})
	}
	var header map[string]any
	if err := json.Unmarshal(headerJSON, &header); err != nil || header == nil {
		return nil, unparseable(map[string]any{"segment": "header"})
	}

	payloadJSON, err := decodeSegment(parts[1])
	if err != nil {
		return nil, unparseable(map[string]any{"segment": "payload"})
	}
	var payload any
	dec := json.NewDecoder(bytes.NewReader(payloadJSON))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || dec.More() {
		return nil, unparseable(map[string]any{"segment": "payload"})
	}

	if _, err := decodeSegment(parts[2]); err != nil {
		return nil, unparseable(map[string]any{"segment": "signature"})
	}

	env := &Envelope{Signature: parts[2]}
	env.Header.KeyID, _ = header["kid"].(string)
	env.Header.Algorithm, _ = header["alg"].(string)
	env.Header.Type, _ = header["typ"].(string)

	if env.Header.KeyID == "" {
		return nil, autherr.TokenUnsuitable("Missing key id", nil).
			WithDetails(autherr.Violation{Field: "kid", Description: "Key id is required"}).
			WithDebug(map[string]any{"header": header})
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, autherr.TokenUnsuitable("Bad string payload", nil).
			WithDebug(map[string]any{"payload": payload})
	}
	env.Payload = obj

	return env, nil
}

func decodeSegment(seg string) ([]byte, error) {
	// Padding is tolerated.
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
}

func unparseable(debug map[string]any) *autherr.Error {
	return autherr.TokenInvalid("Unparseable token", nil).WithDebug(debug)
}
