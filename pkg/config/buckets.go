package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rate-gate/pkg/ratelimit"
)

// BucketsConfig represents per-bucket limit definitions loaded from YAML.
//
// The file maps bucket names to ordered lists of "requests/seconds" specs:
//
//	buckets:
//	  api:
//	    - "100/60"
//	    - "1000/3600"
//	  search:
//	    - "10/60"
type BucketsConfig struct {
	Buckets map[string][]string `yaml:"buckets"`
}

// LoadBucketsFile loads bucket limit definitions from a YAML file.
// The path parameter is expected to come from a trusted source (command-line
// argument or hardcoded default).
//
// Returns a map from normalized bucket name to its ordered limit list.
func LoadBucketsFile(path string) (map[string][]ratelimit.Limit, error) {
	// #nosec G304 -- path is provided by trusted source (CLI arg or config), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read buckets file: %w", err)
	}

	return ParseBuckets(data)
}

// ParseBuckets parses YAML bucket definitions.
//
// Every bucket name must pass the engine's naming rules and every spec must
// be a well-formed positive "requests/seconds" pair; a single bad entry fails
// the whole load so misconfiguration is caught at startup, not per request.
func ParseBuckets(data []byte) (map[string][]ratelimit.Limit, error) {
	var config BucketsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse buckets config: %w", err)
	}

	buckets := make(map[string][]ratelimit.Limit, len(config.Buckets))
	for name, specs := range config.Buckets {
		normalized, err := ratelimit.NormalizeBucket(name)
		if err != nil {
			return nil, fmt.Errorf("bucket %q: %w", name, err)
		}

		if len(specs) == 0 {
			return nil, fmt.Errorf("bucket %q: no limits defined", name)
		}

		limits := make([]ratelimit.Limit, 0, len(specs))
		for i, spec := range specs {
			limit, err := ratelimit.ParseLimit(spec)
			if err != nil {
				return nil, fmt.Errorf("bucket %q limit %d: %w", name, i, err)
			}
			limits = append(limits, limit)
		}

		if _, ok := buckets[normalized]; ok {
			return nil, fmt.Errorf("bucket %q: duplicate definition after normalization", name)
		}
		buckets[normalized] = limits
	}

	return buckets, nil
}
