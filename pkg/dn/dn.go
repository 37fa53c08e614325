// Package dn parses and compares LDAP distinguished names to the extent the
// replication protocol needs: identifying targets and reasoning about
// parent/child relationships.
package dn

import (
	"errors"
	"fmt"
	"strings"
)

// DN parsing errors
var (
	ErrInvalidDN  = errors.New("invalid DN")
	ErrInvalidRDN = errors.New("invalid RDN")
)

type rdn struct {
	raw  string
	norm string
}

// DN is a parsed distinguished name. Components are stored leaf first.
// The zero value is the root DN.
type DN struct {
	text string
	rdns []rdn
}

// Root is the empty DN at the top of the tree
var Root = DN{}

// Parse parses a DN string. The empty string is the root DN.
func Parse(text string) (DN, error) {
	trimmed := trimSpace(text)
	if trimmed == "" {
		return Root, nil
	}

	parts, err := split(trimmed, ',')
	if err != nil {
		return DN{}, fmt.Errorf("%w %q: %w", ErrInvalidDN, text, err)
	}

	rdns := make([]rdn, len(parts))
	for i, part := range parts {
		norm, err := normalizeRDN(part)
		if err != nil {
			return DN{}, fmt.Errorf("%w %q: %w", ErrInvalidDN, text, err)
		}
		rdns[i] = rdn{raw: trimSpace(part), norm: norm}
	}

	return DN{text: trimmed, rdns: rdns}, nil
}

// MustParse is like Parse but panics on error
func MustParse(text string) DN {
	d, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseRDN validates a single relative distinguished name and returns its
// normalized form.
func ParseRDN(text string) (string, error) {
	parts, err := split(trimSpace(text), ',')
	if err != nil {
		return "", err
	}
	if len(parts) != 1 {
		return "", fmt.Errorf("%w: %q has %d components", ErrInvalidRDN, text, len(parts))
	}
	return normalizeRDN(parts[0])
}

// String returns the DN text as it was parsed or built
func (d DN) String() string {
	if d.text == "" && len(d.rdns) > 0 {
		return joinRaw(d.rdns)
	}
	return d.text
}

// Normalized returns the canonical text form used for comparisons and keys
func (d DN) Normalized() string {
	parts := make([]string, len(d.rdns))
	for i, r := range d.rdns {
		parts[i] = strings.ToLower(r.norm)
	}
	return strings.Join(parts, ",")
}

// IsRoot reports whether d is the root DN
func (d DN) IsRoot() bool {
	return len(d.rdns) == 0
}

// Depth returns the number of RDN components
func (d DN) Depth() int {
	return len(d.rdns)
}

// RDN returns the leaf component, or "" for the root DN
func (d DN) RDN() string {
	if d.IsRoot() {
		return ""
	}
	return d.rdns[0].raw
}

// Parent returns the immediate parent. The parent of a single-component DN
// is the root DN; the root DN has no parent.
func (d DN) Parent() (DN, bool) {
	if d.IsRoot() {
		return Root, false
	}
	rest := d.rdns[1:]
	return DN{text: joinRaw(rest), rdns: rest}, true
}

// Child returns the DN formed by prefixing d with the given RDN
func (d DN) Child(rdnText string) (DN, error) {
	norm, err := ParseRDN(rdnText)
	if err != nil {
		return DN{}, err
	}
	rdns := make([]rdn, 0, len(d.rdns)+1)
	rdns = append(rdns, rdn{raw: trimSpace(rdnText), norm: norm})
	rdns = append(rdns, d.rdns...)
	return DN{text: joinRaw(rdns), rdns: rdns}, nil
}

// Equal compares DNs component-wise, ignoring case and insignificant spaces
func (d DN) Equal(other DN) bool {
	if len(d.rdns) != len(other.rdns) {
		return false
	}
	for i := range d.rdns {
		if !strings.EqualFold(d.rdns[i].norm, other.rdns[i].norm) {
			return false
		}
	}
	return true
}

// IsParentOf reports whether d is the immediate parent of child
func (d DN) IsParentOf(child DN) bool {
	return len(child.rdns) == len(d.rdns)+1 && d.isSuffixOf(child)
}

// IsAncestorOf reports whether d is a strict ancestor of descendant
func (d DN) IsAncestorOf(descendant DN) bool {
	return len(descendant.rdns) > len(d.rdns) && d.isSuffixOf(descendant)
}

func (d DN) isSuffixOf(other DN) bool {
	offset := len(other.rdns) - len(d.rdns)
	for i := range d.rdns {
		if !strings.EqualFold(d.rdns[i].norm, other.rdns[offset+i].norm) {
			return false
		}
	}
	return true
}

func joinRaw(rdns []rdn) string {
	parts := make([]string, len(rdns))
	for i, r := range rdns {
		parts[i] = r.raw
	}
	return strings.Join(parts, ",")
}

// split cuts s on unescaped occurrences of sep. Empty components and a
// dangling escape are errors.
func split(s string, sep byte) ([]string, error) {
	var parts []string
	start := 0
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if escaped {
		return nil, fmt.Errorf("%w: dangling escape", ErrInvalidRDN)
	}
	parts = append(parts, s[start:])

	for _, p := range parts {
		if trimSpace(p) == "" {
			return nil, fmt.Errorf("%w: empty component", ErrInvalidRDN)
		}
	}
	return parts, nil
}

// normalizeRDN validates every type=value pair of a (possibly multi-valued)
// RDN and lower-cases the attribute types.
func normalizeRDN(text string) (string, error) {
	avas, err := split(trimSpace(text), '+')
	if err != nil {
		return "", err
	}

	out := make([]string, len(avas))
	for i, ava := range avas {
		eq := strings.IndexByte(ava, '=')
		if eq < 0 {
			return "", fmt.Errorf("%w: %q has no '='", ErrInvalidRDN, ava)
		}
		attrType := trimSpace(ava[:eq])
		if !validAttributeType(attrType) {
			return "", fmt.Errorf("%w: bad attribute type %q", ErrInvalidRDN, attrType)
		}
		out[i] = strings.ToLower(attrType) + "=" + trimSpace(ava[eq+1:])
	}
	return strings.Join(out, "+"), nil
}

// trimSpace trims surrounding whitespace but keeps a trailing space that is
// escaped with a backslash
func trimSpace(s string) string {
	s = strings.TrimLeft(s, spaces)
	end := len(s)
	for end > 0 && strings.IndexByte(spaces, s[end-1]) >= 0 {
		backslashes := 0
		for j := end - 2; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 1 {
			break
		}
		end--
	}
	return s[:end]
}

const spaces = " \t\n\v\f\r"

func validAttributeType(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == ';':
		default:
			return false
		}
	}
	return true
}
