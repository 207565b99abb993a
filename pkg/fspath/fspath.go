// Package fspath provides path normalization and glob pattern matching for
// the fsx virtual filesystem namespace.
//
// All paths stored or compared anywhere in fsx go through Normalize first,
// so the metadata store, the subscription registry and the tier map always
// agree on canonical form: absolute, no "." or ".." segments, no repeated
// slashes, no trailing slash except for the root itself.
package fspath

import (
	"strings"

	"github.com/marmos91/fsx/pkg/fserrors"
)

// Clean collapses repeated slashes, resolves "." and ".." segments and
// strips any trailing slash except for the root path.
func Clean(p string) string {
	if p == "" {
		return "/"
	}

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			// skip
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

// Normalize cleans p and rejects non-absolute inputs.
func Normalize(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", fserrors.NewInvalidArgument("path must be absolute: " + p)
	}
	return Clean(p), nil
}

// Base returns the last segment of a normalized path ("/" for the root).
func Base(p string) string {
	if p == "/" || p == "" {
		return "/"
	}
	idx := strings.LastIndexByte(p, '/')
	return p[idx+1:]
}

// Parent returns the parent directory of a normalized path ("/" stays "/").
func Parent(p string) string {
	if p == "/" || p == "" {
		return "/"
	}
	idx := strings.LastIndexByte(p, '/')
	if idx == 0 {
		return "/"
	}
	return p[:idx]
}

// Join concatenates a normalized directory and a child name.
func Join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// IsPattern reports whether p contains glob wildcards.
func IsPattern(p string) bool {
	return strings.ContainsRune(p, '*')
}
