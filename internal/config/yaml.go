package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// coerceToJSONBytes re-encodes YAML as JSON so both file formats share one
// strict decoder. The second result names the source format for errors.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	if !isYAMLPath(path) {
		return data, "json", nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("parse yaml: %w", err)
	}
	out, err := json.Marshal(jsonable(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("re-encode yaml as json: %w", err)
	}
	return out, "yaml", nil
}

// jsonable rewrites non-string map keys (YAML allows `1: x`) so
// encoding/json accepts the tree.
func jsonable(node any) any {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			n[k] = jsonable(v)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = jsonable(v)
		}
		return out
	case []any:
		for i, v := range n {
			n[i] = jsonable(v)
		}
		return n
	}
	return node
}
