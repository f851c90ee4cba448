package http

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// openAPIDocument renders the embedded API description as JSON. A non-empty
// version replaces info.version so the document follows the binary.
func openAPIDocument(version string) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi.yaml: %w", err)
	}

	if version != "" {
		info, _ := doc["info"].(map[string]any)
		if info == nil {
			info = make(map[string]any)
			doc["info"] = info
		}
		info["version"] = version
	}

	return json.MarshalIndent(jsonKeys(doc), "", "  ")
}

// jsonKeys rewrites mappings with non-string keys, which yaml produces for
// unquoted numeric keys such as response codes.
func jsonKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for key, value := range v {
			v[key] = jsonKeys(value)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[fmt.Sprint(key)] = jsonKeys(value)
		}
		return out
	case []any:
		for i, value := range v {
			v[i] = jsonKeys(value)
		}
		return v
	default:
		return v
	}
}
