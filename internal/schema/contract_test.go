package schema

import (
	"os"
	"path/filepath"
	"testing"
)

const testContract = `
events:
  document_edit:
    type: document_action
    properties: [changeSize]
  user_logout:
    type: user_action
    properties: []
`

func writeContract(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileDisablesChecks(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Expected missing file to be tolerated, got %v", err)
	}
	if !r.CheckProperties("document_edit", nil) {
		t.Error("Expected empty registry to pass everything")
	}
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeContract(t, "events: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error for malformed contract")
	}
}

func TestCheckProperties(t *testing.T) {
	r, err := Load(writeContract(t, testContract))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		eventName  string
		properties map[string]interface{}
		want       bool
	}{
		{"documented key present", "document_edit", map[string]interface{}{"changeSize": 12}, true},
		{"extra keys accepted alongside", "document_edit", map[string]interface{}{"changeSize": 12, "custom": true}, true},
		{"no documented key", "document_edit", map[string]interface{}{"custom": true}, false},
		{"empty properties on keyed event", "document_edit", nil, false},
		{"unknown event always passes", "mystery_event", nil, true},
		{"keyless contract always passes", "user_logout", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.CheckProperties(tc.eventName, tc.properties); got != tc.want {
				t.Errorf("CheckProperties(%s) = %v, want %v", tc.eventName, got, tc.want)
			}
		})
	}
}

func TestKnownKeys(t *testing.T) {
	r, err := Load(writeContract(t, testContract))
	if err != nil {
		t.Fatal(err)
	}

	keys, ok := r.KnownKeys("document_edit")
	if !ok || len(keys) != 1 || keys[0] != "changeSize" {
		t.Errorf("Expected [changeSize], got %v (ok=%v)", keys, ok)
	}
	if _, ok := r.KnownKeys("mystery_event"); ok {
		t.Error("Expected unknown event name to report not found")
	}
}

func TestReload_PicksUpChanges(t *testing.T) {
	path := writeContract(t, testContract)
	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	updated := testContract + `
  search_query:
    type: search
    properties: [query]
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if _, ok := r.KnownKeys("search_query"); !ok {
		t.Error("Expected reloaded contract to include search_query")
	}
}
