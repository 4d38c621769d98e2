package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

func findRepoRootForAdminTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func compileModelsSchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	b, err := json.Marshal(buildModelsSchema())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("models.schema.json", bytes.NewReader(b)); err != nil {
		t.Fatalf("add resource: %v", err)
	}
	s, err := c.Compile("models.schema.json")
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, b)
	}
	return s
}

// yamlToJSONValue converts a YAML document into the value shape the validator expects.
func yamlToJSONValue(t *testing.T, raw []byte) any {
	t.Helper()
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("json: %v", err)
	}
	return v
}

func TestModelsSchema_AcceptsShippedCatalog(t *testing.T) {
	s := compileModelsSchema(t)
	raw, err := os.ReadFile(filepath.Join(findRepoRootForAdminTests(t), "configs", "models.yaml"))
	if err != nil {
		t.Fatalf("read models.yaml: %v", err)
	}
	if err := s.Validate(yamlToJSONValue(t, raw)); err != nil {
		t.Fatalf("configs/models.yaml does not match schema: %v", err)
	}
}

func TestModelsSchema_RejectsUnknownKeysAndMissingDuration(t *testing.T) {
	s := compileModelsSchema(t)
	for name, doc := range map[string]string{
		"unknown key": `
default_model: cow
models:
  - name: cow
    bbox: {center: [0, 0, 0], half_extents: [1, 1, 1]}
    clips: [{name: idle, duration: 1}]
    sound: moo
`,
		"missing duration": `
default_model: cow
models:
  - name: cow
    bbox: {center: [0, 0, 0], half_extents: [1, 1, 1]}
    clips: [{name: idle}]
`,
	} {
		if err := s.Validate(yamlToJSONValue(t, []byte(doc))); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
