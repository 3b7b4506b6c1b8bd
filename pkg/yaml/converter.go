package yaml

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
)

// JSONToYAML converts JSON bytes to YAML bytes
func JSONToYAML(jsonBytes []byte) ([]byte, error) {
	var jsonObj interface{}
	if err := json.Unmarshal(jsonBytes, &jsonObj); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}

	yamlBytes, err := yaml.Marshal(jsonObj)
	if err != nil {
		return nil, fmt.Errorf("error converting to YAML: %w", err)
	}

	return yamlBytes, nil
}

// Marshal renders obj as YAML.
func Marshal(obj interface{}) ([]byte, error) {
	out, err := yaml.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("error rendering YAML: %w", err)
	}
	return out, nil
}

// UnmarshalYAML parses YAML bytes into the provided object
func UnmarshalYAML(yamlBytes []byte, obj interface{}) error {
	if err := yaml.Unmarshal(yamlBytes, obj); err != nil {
		return fmt.Errorf("error parsing YAML: %w", err)
	}
	return nil
}

// UnmarshalStrict parses YAML bytes into obj and rejects fields obj does not
// declare, so typos in inventory and config files are reported.
func UnmarshalStrict(yamlBytes []byte, obj interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(yamlBytes), yaml.Strict())
	if err := dec.Decode(obj); err != nil {
		return fmt.Errorf("error parsing YAML: %w", err)
	}
	return nil
}

// Validate checks that yamlBytes is a well-formed YAML document whose root is
// a mapping.
func Validate(yamlBytes []byte) error {
	var root map[string]interface{}
	if err := yaml.Unmarshal(yamlBytes, &root); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if root == nil {
		return fmt.Errorf("invalid YAML: document is empty")
	}
	return nil
}
