// Package pdf extracts text and bibliographic metadata from PDF files.
package pdf

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxAbstractLength caps the extracted abstract, in characters.
const MaxAbstractLength = 2000

// Metadata holds what can be recovered about a paper from its PDF.
type Metadata struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	Pages    int      `json:"pages"`
}

// Extract reads every page of the PDF at path and returns its metadata and
// full text. Pages that fail to decode contribute no text.
func Extract(path string) (Metadata, string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Metadata{}, "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return extract(r)
}

// ExtractReader is Extract for an in-memory or already open document.
func ExtractReader(r io.ReaderAt, size int64) (Metadata, string, error) {
	pr, err := pdf.NewReader(r, size)
	if err != nil {
		return Metadata{}, "", fmt.Errorf("reading pdf: %w", err)
	}
	return extract(pr)
}

func extract(r *pdf.Reader) (Metadata, string, error) {
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}

	meta, text := Parse(pages)

	info := r.Trailer().Key("Info")
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(info.Key("Title").Text())
	}
	meta.Authors = splitAuthors(info.Key("Author").Text())

	return meta, text, nil
}

// Parse applies the metadata heuristics to already extracted page texts and
// returns the metadata together with the joined full text.
func Parse(pages []string) (Metadata, string) {
	text := strings.Join(pages, "\n")
	meta := Metadata{Pages: len(pages)}
	if len(pages) == 0 {
		return meta, text
	}

	meta.Title = findTitle(pages[0])
	meta.Abstract = findAbstract(text)
	meta.DOI = findDOI(strings.Join(pages[:min(3, len(pages))], "\n"))
	return meta, text
}

// ReadText returns the contents of a plain-text file as a single page, for
// papers that are already extracted.
func ReadText(path string) (Metadata, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, "", fmt.Errorf("reading %s: %w", path, err)
	}
	meta, text := Parse([]string{string(data)})
	return meta, text, nil
}

// findTitle returns the first substantial line of the first page.
func findTitle(firstPage string) string {
	for _, line := range strings.Split(firstPage, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) > 10 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

var (
	abstractStart = regexp.MustCompile(`(?i)\babstract\b[:\s]*`)
	abstractEnd   = regexp.MustCompile(`(?i)\n[a-z0-9]{1,50}\n|1\.\s+introduction\b|introduction\b|references\b`)
)

// findAbstract returns the text between an "Abstract" heading and the next
// short heading line, the introduction, or the references.
func findAbstract(text string) string {
	loc := abstractStart.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if rest == "" {
		return ""
	}

	// The abstract is at least one character long.
	_, first := utf8.DecodeRuneInString(rest)
	if end := abstractEnd.FindStringIndex(rest[first:]); end != nil {
		rest = rest[:first+end[0]]
	}

	abstract := strings.TrimSpace(rest)
	if utf8.RuneCountInString(abstract) > MaxAbstractLength {
		abstract = string([]rune(abstract)[:MaxAbstractLength])
	}
	return abstract
}

// splitAuthors splits a document-info author field such as
// "A. Turing; G. Hopper" or "Ada Lovelace and Charles Babbage".
func splitAuthors(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	sep := ";"
	if !strings.Contains(field, ";") {
		field = strings.ReplaceAll(field, " and ", ",")
		sep = ","
	}
	var authors []string
	for _, a := range strings.Split(field, sep) {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}
	return authors
}
