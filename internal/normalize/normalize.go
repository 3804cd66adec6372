// Package normalize canonicalizes warehouse location codes and provides the
// anchored glob matcher used for pattern locations and product filters.
// Everything in here is a pure function; the package never returns errors.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Tenant prefixes are stripped once, before separator normalization, so
	// that a second pass can never strip again (keeps Canonical idempotent).
	tenantPrefixRe = regexp.MustCompile(`^(USER_[A-Z0-9]+_|WH_|DEFAULT_)`)

	separatorRe = regexp.MustCompile(`[_\s]+`)
	dashRunRe   = regexp.MustCompile(`-{2,}`)

	// storageShapeRe matches structured storage codes: aisle, rack letter,
	// position, level letter. Canonical re-emits as AA-R-PPP-L zero-padded.
	storageShapeRe = regexp.MustCompile(`^(\d{1,2})-([A-Z])-(\d{1,3})-?([A-Z])$`)
)

// Canonical returns the comparable form of a raw location code. It trims,
// uppercases, strips one tenant prefix, unifies separators to single dashes
// and zero-pads structured storage codes. Unrecognized shapes pass through
// after the generic cleanup. Canonical(Canonical(x)) == Canonical(x).
func Canonical(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = tenantPrefixRe.ReplaceAllString(s, "")
	s = separatorRe.ReplaceAllString(s, "-")
	s = dashRunRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if m := storageShapeRe.FindStringSubmatch(s); m != nil {
		aisle, _ := strconv.Atoi(m[1])
		pos, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%02d-%s-%03d-%s", aisle, m[2], pos, m[4])
	}
	return s
}

// ParseStorage decodes a canonical storage code into its structure. The
// second return is false for non-structured shapes.
func ParseStorage(code string) (aisle int, rack string, position int, level string, ok bool) {
	m := storageShapeRe.FindStringSubmatch(code)
	if m == nil {
		return 0, "", 0, "", false
	}
	aisle, _ = strconv.Atoi(m[1])
	position, _ = strconv.Atoi(m[3])
	return aisle, m[2], position, m[4], true
}

// Glob reports whether code matches pattern under anchored glob semantics:
// '*' matches any run (including empty), '?' exactly one character, and
// '[...]' a character class with ranges and a leading '^' or '!' negation.
// A malformed class matches nothing.
func Glob(pattern, code string) bool {
	return globMatch(pattern, code)
}

func globMatch(pattern, s string) bool {
	px, sx := 0, 0
	starPx, starSx := -1, -1
	for sx < len(s) {
		if px < len(pattern) {
			switch pattern[px] {
			case '*':
				// Remember the star; try the shortest match first and
				// backtrack by re-consuming one input byte at a time.
				starPx, starSx = px, sx
				px++
				continue
			case '?':
				px++
				sx++
				continue
			case '[':
				matched, next, ok := matchClass(pattern, px, s[sx])
				if ok && matched {
					px = next
					sx++
					continue
				}
			default:
				if pattern[px] == s[sx] {
					px++
					sx++
					continue
				}
			}
		}
		if starPx >= 0 {
			starSx++
			px = starPx + 1
			sx = starSx
			continue
		}
		return false
	}
	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}

// matchClass evaluates the class starting at pattern[start]=='[' against c.
// Returns whether c matched, the index after the closing ']', and whether
// the class was well-formed.
func matchClass(pattern string, start int, c byte) (matched bool, next int, ok bool) {
	i := start + 1
	negate := false
	if i < len(pattern) && (pattern[i] == '^' || pattern[i] == '!') {
		negate = true
		i++
	}
	found := false
	first := true
	for i < len(pattern) {
		if pattern[i] == ']' && !first {
			if negate {
				return !found, i + 1, true
			}
			return found, i + 1, true
		}
		first = false
		if i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']' {
			if pattern[i] <= c && c <= pattern[i+2] {
				found = true
			}
			i += 3
			continue
		}
		if pattern[i] == c {
			found = true
		}
		i++
	}
	return false, len(pattern), false
}

// Specificity counts the literal characters of a glob pattern. Resolve uses
// it to prefer the most concrete pattern when several match; a character
// class counts as a single literal.
func Specificity(pattern string) int {
	n := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?':
			// wildcard, no weight
		case '[':
			for i < len(pattern) && pattern[i] != ']' {
				i++
			}
			n++
		default:
			n++
		}
	}
	return n
}
