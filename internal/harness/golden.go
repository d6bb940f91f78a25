package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its traces against
// testdata/{scenario.Name}.golden. Regenerate goldens with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		t.Fatalf("run scenario %s: %v", s.Name, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		t.Fatalf("encode result: %v", err)
	}
	data := buf.Bytes()

	g := goldie.New(t)
	g.Assert(t, s.Name, data)
}

// RunFileWithGolden loads a scenario file and runs it against its golden.
func RunFileWithGolden(t *testing.T, path string) {
	t.Helper()
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	RunWithGolden(t, s)
}
