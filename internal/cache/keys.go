package cache

import (
	"path/filepath"

	"golang.org/x/text/cases"
)

// FoldKey returns key with Unicode case folding applied, so keys that differ
// only in case compare equal. Fold only the parts of a key that name files;
// shader identifiers are case-sensitive.
func FoldKey(key string) string {
	// A Caser keeps state between calls; one per call keeps FoldKey reentrant.
	return cases.Fold().String(key)
}

// CanonicalPath returns the absolute, cleaned form of path.
// Relative paths resolve against the working directory.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
