package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainContentKey prefixes every content key hash.
// The version suffix leaves room for an algorithm migration.
const DomainContentKey = "citytrain/content-key/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MakeKey derives the content key for a (config, content) pair.
//
// Both inputs are hashed together as canonical JSON:
//
//	{"config": <config>, "content": <content>}
//
// Changing either one, down to a single character or a single config field,
// changes the key. The only failure is a config encoding/json cannot marshal
// (channels, funcs, cyclic values).
func MakeKey(config any, content string) (string, error) {
	cfg, err := FromGo(config)
	if err != nil {
		return "", fmt.Errorf("MakeKey: %w", err)
	}

	data, err := Marshal(Object{
		"config":  cfg,
		"content": String(content),
	})
	if err != nil {
		return "", fmt.Errorf("MakeKey: %w", err)
	}

	return hashWithDomain(DomainContentKey, data), nil
}

// MustMakeKey is like MakeKey but panics on error.
// Use only in tests or when the config is known to be serializable.
func MustMakeKey(config any, content string) string {
	key, err := MakeKey(config, content)
	if err != nil {
		panic(err)
	}
	return key
}
