package diff

import (
	"strings"
	"testing"
)

func TestTextDiffLines(t *testing.T) {
	lines := TextDiff("alpha\nbeta\n", "alpha\ngamma\n")
	if len(lines) == 0 {
		t.Fatalf("expected lines")
	}
	foundAdded := false
	foundRemoved := false
	for _, line := range lines {
		if line.Type == LineAdded && line.Text == "gamma" {
			foundAdded = true
		}
		if line.Type == LineRemoved && line.Text == "beta" {
			foundRemoved = true
		}
	}
	if !foundAdded || !foundRemoved {
		t.Fatalf("expected gamma added and beta removed, got %+v", lines)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name        string
		before      string
		after       string
		wantAdded   int
		wantRemoved int
	}{
		{"identical", "a\nb\n", "a\nb\n", 0, 0},
		{"create", "", "x\ny", 2, 0},
		{"delete", "x\ny\n", "", 0, 2},
		{"append without final newline", "a\nb", "a\nb\nc", 1, 0},
		{"replace middle", "a\nb\nc", "a\nB\nc", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.before, tt.after)
			if got.LinesAdded != tt.wantAdded || got.LinesRemoved != tt.wantRemoved {
				t.Errorf("Summarize() = +%d -%d, want +%d -%d", got.LinesAdded, got.LinesRemoved, tt.wantAdded, tt.wantRemoved)
			}
		})
	}
}

func TestSummarize_Preview(t *testing.T) {
	got := Summarize("a\nb\n", "a\nc\n")
	if got.Preview != "-   2 b\n+   2 c\n" {
		t.Errorf("Preview = %q", got.Preview)
	}
	if Summarize("same\n", "same\n").Preview != "" {
		t.Error("unchanged content should have an empty preview")
	}
	big := strings.Repeat("x\n", MaxDiffLines)
	if Preview(big, big+"y\n") != "" {
		t.Error("oversized inputs should have no preview")
	}
}

func TestRender_Truncates(t *testing.T) {
	out := Render(TextDiff("", "1\n2\n3\n4\n"), 2)
	if !strings.Contains(out, "+   1 1") || !strings.Contains(out, "+   2 2") {
		t.Errorf("expected first two added lines, got %q", out)
	}
	if strings.Contains(out, "+   3 3") {
		t.Errorf("expected third line to be truncated, got %q", out)
	}
	if !strings.Contains(out, "... 2 more changed lines") {
		t.Errorf("expected truncation note, got %q", out)
	}
}
