package utils

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreList holds path patterns the agent scanner skips
type IgnoreList struct {
	terms []string
}

// LoadIgnoreList loads ignore patterns from a file, one per line.
// Blank lines and lines starting with # are skipped.
func LoadIgnoreList(path string) (*IgnoreList, error) {
	// If file doesn't exist, return empty list
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &IgnoreList{terms: []string{}}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &IgnoreList{terms: terms}, nil
}

// NewIgnoreList builds a list from in-memory patterns
func NewIgnoreList(terms ...string) *IgnoreList {
	return &IgnoreList{terms: terms}
}

// IsIgnored checks if a path matches any pattern, either as a
// glob against the base name or as a case-insensitive substring.
// Returns (isIgnored, matchedTerm)
func (l *IgnoreList) IsIgnored(path string) (bool, string) {
	if l == nil {
		return false, ""
	}
	pathLower := strings.ToLower(path)
	base := filepath.Base(path)

	for _, term := range l.terms {
		if ok, _ := filepath.Match(term, base); ok {
			return true, term
		}
		if strings.Contains(pathLower, strings.ToLower(term)) {
			return true, term
		}
	}

	return false, ""
}
