// Package minhash computes fixed-length MinHash signatures of free text and
// estimates Jaccard similarity between them.
//
// A signature holds, for each of numPerm seeded hash functions, the minimum
// hash value over the whitespace-delimited tokens of the text. Because min is
// a set operation, the signature does not depend on token order.
//
// Two signatures are only comparable when generated with the same numPerm.
// Similarity compares positionally over the shorter length, so mixing lengths
// does not fail, but the estimate degrades. Callers are responsible for
// keeping numPerm consistent across stored signatures.
package minhash

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultNumPerm is the signature length used by the store and the detector
const DefaultNumPerm = 32

// Signature is an ordered sequence of per-seed minimum hash values
type Signature []uint32

// Generate tokenizes text on whitespace runs and returns its signature.
// Empty or all-whitespace text yields a single empty token, so the result is
// deterministic but carries no useful signal.
func Generate(text string, numPerm int) Signature {
	return FromTokens(tokenize(text), numPerm)
}

// FromTokens builds a signature from pre-split tokens. With zero tokens every
// slot keeps math.MaxUint32, the "empty/unknown" sentinel.
func FromTokens(tokens []string, numPerm int) Signature {
	if numPerm < 0 {
		numPerm = 0
	}

	sig := make(Signature, numPerm)
	for i := range sig {
		sig[i] = math.MaxUint32
	}

	for _, tok := range tokens {
		for i := range sig {
			if h := hash32(tok, uint32(i+1)); h < sig[i] {
				sig[i] = h
			}
		}
	}

	return sig
}

// Similarity returns the fraction of equal positions over the shorter of the
// two signatures. Two empty signatures compare as 0, never NaN.
func Similarity(a, b Signature) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}

	equal := 0
	for i := 0; i < n; i++ {
		if a[i] == b[i] {
			equal++
		}
	}

	return float64(equal) / float64(n)
}

// IsSentinel reports whether every slot still holds the initial max value
func (s Signature) IsSentinel() bool {
	for _, v := range s {
		if v != math.MaxUint32 {
			return false
		}
	}
	return true
}

// Marshal encodes a signature as a JSON array for storage
func Marshal(sig Signature) string {
	if sig == nil {
		sig = Signature{}
	}
	data, _ := json.Marshal([]uint32(sig))
	return string(data)
}

// Parse decodes a stored JSON array signature
func Parse(raw string) (Signature, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty signature")
	}

	var values []uint32
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.Wrap(err, "decode signature")
	}
	if len(values) == 0 {
		return nil, errors.New("empty signature")
	}

	return Signature(values), nil
}

func tokenize(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return []string{""}
	}
	return strings.Fields(trimmed)
}

// hash32 is seeded FNV-1a with a murmur3 finalizer for avalanche
func hash32(token string, seed uint32) uint32 {
	h := uint32(2166136261) ^ (seed * 0x9e3779b1)
	for i := 0; i < len(token); i++ {
		h ^= uint32(token[i])
		h *= 16777619
	}

	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
