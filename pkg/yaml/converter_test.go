package yaml

import (
	"strings"
	"testing"
)

func TestJSONToYAML(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
		// Expected YAML output fragments (partial matches)
		expectedYAMLFragments []string
	}{
		{
			name:                  "Simple JSON object",
			json:                  `{"unit": "auth", "status": "success"}`,
			expectedYAMLFragments: []string{"unit: auth", "status: success"},
		},
		{
			name: "Nested JSON object",
			json: `{"results": [{"id": "shop.orders"}], "counts": [1, 2]}`,
			expectedYAMLFragments: []string{
				"results:",
				"id: shop.orders",
				"counts:",
				"- 1",
				"- 2",
			},
		},
		{
			name:    "Invalid JSON",
			json:    `{"invalid": json}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yamlBytes, err := JSONToYAML([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Fatalf("JSONToYAML() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			yamlStr := string(yamlBytes)
			for _, fragment := range tt.expectedYAMLFragments {
				if !strings.Contains(yamlStr, fragment) {
					t.Errorf("YAML output missing expected fragment: %q\n%s", fragment, yamlStr)
				}
			}
		})
	}
}

func TestUnmarshalStrict(t *testing.T) {
	type host struct {
		Name string `yaml:"name"`
	}
	var h host
	if err := UnmarshalStrict([]byte("name: db1\n"), &h); err != nil || h.Name != "db1" {
		t.Fatalf("UnmarshalStrict = %v, %+v", err, h)
	}
	if err := UnmarshalStrict([]byte("name: db1\nnmae: typo\n"), &h); err == nil {
		t.Error("unknown field was accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"mapping", "services:\n  web:\n    image: nginx\n", false},
		{"empty", "", true},
		{"broken indentation", "services:\n  web:\n image: [\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate([]byte(tt.doc)); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
