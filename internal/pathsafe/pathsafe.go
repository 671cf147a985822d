// Package pathsafe validates relative paths before they touch the mirror
// working tree. It is the only gate in front of mirror filesystem writes.
package pathsafe

import (
	"fmt"
	"path"
	"strings"

	"github.com/tom-jordan23/cooking-mcp/internal/apperr"
)

// MaxLength is the longest accepted path, in bytes.
const MaxLength = 500

// Clean validates p and returns its slash-normalized form. The result is
// guaranteed to be a relative path that stays inside the tree it is joined
// to. Pure: no filesystem access.
func Clean(p string) (string, error) {
	if err := Validate(p); err != nil {
		return "", err
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/")), nil
}

// Validate rejects empty, absolute, traversing, repository-internal,
// oversized, and control-character paths. Checks run against the
// slash-normalized form so that "./.git/x" cannot sneak past the
// prefix test.
func Validate(p string) error {
	if p == "" {
		return fmt.Errorf("pathsafe: empty path: %w", apperr.ErrSecurity)
	}
	if len(p) > MaxLength {
		return fmt.Errorf("pathsafe: path too long (%d bytes): %w", len(p), apperr.ErrSecurity)
	}

	normalized := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if strings.HasPrefix(normalized, "/") {
		return fmt.Errorf("pathsafe: absolute paths not allowed: %w", apperr.ErrSecurity)
	}
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return fmt.Errorf("pathsafe: path traversal not allowed: %w", apperr.ErrSecurity)
		}
	}
	if normalized == ".git" || strings.HasPrefix(normalized, ".git/") {
		return fmt.Errorf("pathsafe: git metadata access not allowed: %w", apperr.ErrSecurity)
	}
	for _, r := range normalized {
		if r < 0x20 || strings.ContainsRune(`<>:"|?*`, r) {
			return fmt.Errorf("pathsafe: invalid character %q in path: %w", r, apperr.ErrSecurity)
		}
	}
	return nil
}
