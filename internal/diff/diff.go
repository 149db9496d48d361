package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"workspace-editor-server/internal/models"
)

// Line is one line of a line diff. OldLine and NewLine are 1-based and
// zero on the side the line does not exist.
type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Line types.
const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// MaxDiffLines bounds the inputs Summarize will diff line by line.
const MaxDiffLines = 20000

// MaxPreviewLines caps the changed lines kept in a ChangeSummary preview.
const MaxPreviewLines = 40

// TextDiff returns a line diff of before and after. A missing final newline
// does not count as a change to the last line.
func TextDiff(before, after string) []Line {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(terminate(before), terminate(after))
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var lines []Line
	oldLine := 1
	newLine := 1
	for _, d := range diffs {
		chunkLines := strings.Split(d.Text, "\n")
		if len(chunkLines) > 0 && chunkLines[len(chunkLines)-1] == "" {
			chunkLines = chunkLines[:len(chunkLines)-1]
		}
		for _, line := range chunkLines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				lines = append(lines, Line{Type: LineContext, Text: line, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				lines = append(lines, Line{Type: LineRemoved, Text: line, OldLine: oldLine})
				oldLine++
			case diffmatchpatch.DiffInsert:
				lines = append(lines, Line{Type: LineAdded, Text: line, NewLine: newLine})
				newLine++
			}
		}
	}
	return lines
}

// Summarize counts added and removed lines between two versions of a file
// and attaches a rendered preview. Inputs larger than MaxDiffLines are
// counted wholesale and get no preview.
func Summarize(before, after string) *models.ChangeSummary {
	if lineCount(before)+lineCount(after) > MaxDiffLines {
		return &models.ChangeSummary{LinesAdded: lineCount(after), LinesRemoved: lineCount(before)}
	}
	lines := TextDiff(before, after)
	summary := &models.ChangeSummary{Preview: Render(lines, MaxPreviewLines)}
	for _, line := range lines {
		switch line.Type {
		case LineAdded:
			summary.LinesAdded++
		case LineRemoved:
			summary.LinesRemoved++
		}
	}
	return summary
}

// Preview renders the changed lines between before and after, or returns ""
// when the inputs are too large to diff.
func Preview(before, after string) string {
	if lineCount(before)+lineCount(after) > MaxDiffLines {
		return ""
	}
	return Render(TextDiff(before, after), MaxPreviewLines)
}

// Render formats the changed lines of a diff with +/- prefixes, keeping at
// most maxLines of output.
func Render(lines []Line, maxLines int) string {
	var b strings.Builder
	written := 0
	changed := 0
	for _, line := range lines {
		if line.Type == LineContext {
			continue
		}
		changed++
		if maxLines > 0 && written >= maxLines {
			continue
		}
		prefix := "+"
		number := line.NewLine
		if line.Type == LineRemoved {
			prefix = "-"
			number = line.OldLine
		}
		fmt.Fprintf(&b, "%s%4d %s\n", prefix, number, line.Text)
		written++
	}
	if changed > written {
		fmt.Fprintf(&b, "... %d more changed lines\n", changed-written)
	}
	return b.String()
}

func terminate(value string) string {
	if value == "" || strings.HasSuffix(value, "\n") {
		return value
	}
	return value + "\n"
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(terminate(value), "\n")
}
