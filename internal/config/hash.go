package config

import (
	"encoding/json"
	"hash/fnv"
)

// Hash fingerprints cfg so rewrites without content changes can be skipped.
// A nil config hashes to 0.
func Hash(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
