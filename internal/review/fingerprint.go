package review

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	fingerprintTitleLimit = 200
	fingerprintBodyLimit  = 1000
)

// Fingerprint returns the cache key of a finding: a SHA-256 over its title,
// condition and criteria after HTML stripping, whitespace collapsing and
// truncation. Findings that agree on those three fields share an enrichment.
func Fingerprint(f Finding) string {
	parts := []string{
		normalizeText(f.Title, fingerprintTitleLimit),
		normalizeText(f.Condition, fingerprintBodyLimit),
		normalizeText(f.Criteria, fingerprintBodyLimit),
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

// normalizeText strips markup, collapses whitespace and keeps at most limit runes.
func normalizeText(s string, limit int) string {
	s = strings.Join(strings.Fields(stripHTML(s)), " ")
	return truncateRunes(s, limit)
}

// stripHTML returns the text content of s. Rich-text editors store findings
// as HTML fragments; plain text is returned unchanged.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
