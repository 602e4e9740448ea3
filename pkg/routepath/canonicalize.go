// Package routepath normalizes request paths before they reach routing.
package routepath

import (
	"errors"
	"strings"
)

// Path errors. Clean reports one of these for paths that cannot be served.
var (
	ErrBackslash     = errors.New("routepath: path contains backslash")
	ErrNullByte      = errors.New("routepath: path contains null byte")
	ErrInvalidEscape = errors.New("routepath: invalid percent escape")
	ErrEscapesRoot   = errors.New("routepath: path escapes root via ..")
)

// Clean returns the canonical form of an escaped request path.
//
// Repeated slashes collapse, "." segments are dropped, ".." segments pop the
// previous segment and a trailing slash is removed except on the root. The
// result always starts with "/". Escapes are left as they are, so an encoded
// "%2F" stays inside its segment.
//
// Backslashes (literal or %5C), NUL bytes (literal or %00), malformed
// escapes and ".." segments that climb above the root are rejected.
func Clean(escaped string) (string, error) {
	if escaped == "" {
		return "/", nil
	}
	if strings.Contains(escaped, "\x00") {
		return "", ErrNullByte
	}
	if strings.Contains(escaped, "\\") {
		return "", ErrBackslash
	}
	if strings.Contains(escaped, "%") {
		if err := checkEscapes(escaped); err != nil {
			return "", err
		}
	}

	segments := strings.Split(escaped, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", ErrEscapesRoot
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	return "/" + strings.Join(out, "/"), nil
}

func checkEscapes(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			continue
		}
		if i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			return ErrInvalidEscape
		}
		switch strings.ToUpper(s[i+1 : i+3]) {
		case "00":
			return ErrNullByte
		case "5C":
			return ErrBackslash
		}
		i += 2
	}
	return nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
