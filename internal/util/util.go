package util

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}

// CleanRelative normalizes a slash separated relative path and rejects paths that
// are absolute or climb out of their root.
func CleanRelative(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}

	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("invalid path: %s", p)
	}

	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid path: %s", p)
	}

	return cleaned, nil
}
