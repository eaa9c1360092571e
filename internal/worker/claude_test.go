package worker

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/warden/pkg/models"
)

func TestParseChangeset(t *testing.T) {
	text := `===FILE internal/report/export.go===
package report

func Export() error { return nil }
===END===
===DELETE internal/report/legacy.go===
===FILE docs/export.md===
# Export
===END===
`
	cs, err := parseChangeset(text)
	if err != nil {
		t.Fatalf("parseChangeset: %v", err)
	}
	if len(cs.Files) != 3 {
		t.Fatalf("parsed %d files, want 3", len(cs.Files))
	}
	if cs.Files[0].Path != "internal/report/export.go" {
		t.Errorf("file 0 path = %q", cs.Files[0].Path)
	}
	if !strings.Contains(cs.Files[0].Content, "func Export()") {
		t.Errorf("file 0 content lost: %q", cs.Files[0].Content)
	}
	if !cs.Files[1].Delete || cs.Files[1].Path != "internal/report/legacy.go" {
		t.Errorf("file 1 = %+v, want delete of legacy.go", cs.Files[1])
	}
	if cs.Files[2].Content != "# Export" {
		t.Errorf("file 2 content = %q", cs.Files[2].Content)
	}
}

func TestParseChangeset_UnterminatedBlock(t *testing.T) {
	if _, err := parseChangeset("===FILE a.go===\npackage a\n"); err == nil {
		t.Error("expected error for unterminated file block")
	}
}

func TestParseChangeset_IgnoresCommentary(t *testing.T) {
	cs, err := parseChangeset("Here is my plan.\nNothing else.")
	if err != nil {
		t.Fatalf("parseChangeset: %v", err)
	}
	if !cs.Empty() {
		t.Errorf("expected empty changeset, got %+v", cs)
	}
}

func TestBuildSessionPrompt(t *testing.T) {
	task := &models.Task{
		ID:           "t1",
		Title:        "Add export",
		Description:  "Export reports as CSV.",
		FilePatterns: []string{"internal/report/"},
	}
	prompt := buildSessionPrompt(task, "/tmp/ws")
	for _, want := range []string{"t1", "Add export", "Export reports as CSV.", "internal/report/", "/tmp/ws"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
