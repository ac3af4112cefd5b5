// Package canon provides canonical JSON values and content-addressed keys.
//
// Every caching enhancement asks the same question before it spends money on
// an external job: "have I already processed this exact (config, content)
// pair?" The answer is a content key, computed here.
//
// Key properties:
//   - Deterministic: the same config and content always produce the same key
//   - Order-insensitive: map key order and struct field order do not matter,
//     because the config is reduced to canonical JSON before hashing
//   - Unicode-stable: strings are NFC normalized, so visually identical text
//     from different sources hashes the same
//   - Domain separated: SHA-256(domain + 0x00 + canonical bytes)
//
// This package imports nothing internal.
package canon
