package config

import (
	"encoding/json"
	"testing"
)

func TestSchema(t *testing.T) {
	raw, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if schema["title"] != "formsync Configuration" {
		t.Errorf("unexpected title %v", schema["title"])
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("schema has no properties")
	}
	for _, key := range []string{"logging", "api", "storage", "sync"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema is missing %q", key)
		}
	}
}
