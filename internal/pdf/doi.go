package pdf

import (
	"regexp"
	"strings"
)

// doiPattern matches 10.<registrant>/<suffix>.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// findDOI returns the first plausible DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash != -1 && slash < len(doi)-1
}

// isHeaderLine reports lines that are running headers or notices rather
// than a title.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"),
		strings.Contains(lower, "copyright"),
		strings.Contains(lower, "preprint"),
		strings.HasPrefix(lower, "arxiv:"),
		strings.Contains(lower, "volume") && strings.Contains(lower, "issue"),
		strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}
