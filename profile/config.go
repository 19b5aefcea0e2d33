package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// Config is the effective configuration of one build node: every platform
// axis value plus the merged option values.
type Config struct {
	Settings Settings `json:"settings"`
	Options  Options  `json:"options"`
}

// Flatten returns settings and options in a single map keyed by axis or
// option name. Axis names win over options with the same name.
func (c Config) Flatten() map[string]string {
	out := make(map[string]string, len(c.Settings)+len(c.Options))
	for k, v := range c.Options {
		out[k] = v
	}
	for axis, v := range c.Settings {
		out[string(axis)] = v
	}
	return out
}

// Option returns the value of option key.
func (c Config) Option(key string) (string, bool) {
	v, ok := c.Options[key]
	return v, ok
}

// String renders the configuration as "settingsKey|k1=v1,k2=v2" with option
// keys sorted.
func (c Config) String() string {
	keys := slices.Sorted(maps.Keys(c.Options))
	opts := make([]string, len(keys))
	for i, k := range keys {
		opts[i] = k + "=" + c.Options[k]
	}
	s := c.Settings.Key()
	if len(opts) > 0 {
		s += "|" + strings.Join(opts, ",")
	}
	return s
}

// ID returns a short stable digest of the configuration, suitable for
// directory names.
func (c Config) ID() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}
