package filesystem

import "strings"

// DetectLineSeparator returns "\r\n" when content uses Windows line endings
// and "\n" otherwise.
func DetectLineSeparator(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// SplitLines splits file content into lines on its own separator.
// JoinLines(SplitLines(x)) == x for every x, so an empty file is one empty
// line and a trailing newline yields a trailing empty line.
func SplitLines(content string) ([]string, string) {
	sep := DetectLineSeparator(content)
	return strings.Split(content, sep), sep
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string, sep string) string {
	return strings.Join(lines, sep)
}

// SplitContentLines turns an edit's content argument into the lines it
// contributes. Windows line endings are folded and a single trailing newline
// does not produce an extra empty line.
func SplitContentLines(content string) []string {
	normalized := NormalizeNewlines(content)
	normalized = strings.TrimSuffix(normalized, "\n")
	return strings.Split(normalized, "\n")
}

// NormalizeNewlines converts \r\n and lone \r to \n.
func NormalizeNewlines(content string) string {
	if content == "" {
		return ""
	}
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(normalized, "\r", "\n")
}
