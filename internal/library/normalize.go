package library

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	punctuationRe   = regexp.MustCompile(`[^\w\s]`)
	multipleSpaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeTitle normalizes a title for comparison by:
// - Converting to lowercase
// - Replacing punctuation with spaces
// - Normalizing whitespace
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = punctuationRe.ReplaceAllString(s, " ")
	s = multipleSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return s
}

// searchKey is the normalized text a query is matched against.
func searchKey(artist, title, path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return NormalizeTitle(artist + " " + title + " " + base)
}

// matchesAll reports whether every word of query appears in key.
func matchesAll(key string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(key, w) {
			return false
		}
	}
	return true
}
