package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns the process environment as a cty object, so
// configuration can refer to env.PORT or lookup(env, "PORT", "5000").
// Names that are not valid HCL identifiers have the offending characters
// replaced with underscores.
func GetEnvObject() cty.Value {
	attrs := make(map[string]cty.Value)

	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		attrs[envAttributeName(name)] = cty.StringVal(value)
	}

	return cty.ObjectVal(attrs)
}

func envAttributeName(name string) string {
	if name == "" {
		return "_"
	}

	sanitized := strings.Map(func(r rune) rune {
		if isIdentChar(r) {
			return r
		}
		return '_'
	}, name)

	if first := sanitized[0]; first >= '0' && first <= '9' || first == '-' {
		sanitized = "_" + sanitized[1:]
	}

	return sanitized
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}
