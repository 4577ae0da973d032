// Package labels implements the ordered label model used to select resources
// within the hierarchically-named catalog namespace. A Set is a sequence of
// labels kept sorted and unique on (name, value); selectors pair an include
// and an exclude Set.
package labels

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/allisson/authgate/internal/errors"
)

// PrefixSuffix is the reserved suffix which, when appended to a label name
// passed to AddValue or SetValue, marks the inserted label as a prefix match.
const PrefixSuffix = ":prefix"

// Label extraction errors. They surface as validation failures wherever the
// violating selector is used.
var (
	// ErrExpectedOne indicates a name had zero or multiple values where
	// exactly one was required.
	ErrExpectedOne = apperrors.New("expected exactly one label value")

	// ErrEmptyValue indicates the single value of a name is the empty string.
	ErrEmptyValue = apperrors.New("label value is empty")

	// ErrInvalidValue indicates a label value does not match its required format.
	ErrInvalidValue = apperrors.New("label value is invalid")
)

// Label is a name/value pair used to tag or select resources. Prefix marks
// the value as a prefix match rather than an exact match. Label identity is
// (Name, Value) only: the Prefix flag does not participate in equality or
// ordering, so inserting an existing (name, value) with a different Prefix
// flag is a no-op which keeps whichever flag was present first.
type Label struct {
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
	Prefix bool   `json:"prefix,omitempty"`
}

// Set is an ordered collection of labels, sorted and unique on (name, value)
// at all times. The zero value is an empty, ready-to-use Set.
type Set struct {
	Labels []Label
}

// Selector is a predicate over resources: a resource matches if it matches
// every include label and no exclude label.
type Selector struct {
	Include Set `json:"include"`
	Exclude Set `json:"exclude"`
}

// MustSet builds a Set from interleaved name/value pairs.
// It panics if an odd number of arguments is given.
func MustSet(nameValues ...string) Set {
	if len(nameValues)%2 != 0 {
		panic("expected an even number of name/value arguments")
	}
	var set Set
	for i := 0; i != len(nameValues); i += 2 {
		set.AddValue(nameValues[i], nameValues[i+1])
	}
	return set
}

// Range returns the half-open interval [lo, hi) of labels having the given
// name. If the name is absent, lo == hi at its sorted insertion point.
func (s *Set) Range(name string) (lo, hi int) {
	lo = sort.Search(len(s.Labels), func(i int) bool {
		return s.Labels[i].Name >= name
	})
	hi = sort.Search(len(s.Labels), func(i int) bool {
		return s.Labels[i].Name > name
	})
	return lo, hi
}

// ValuesOf returns the ordered labels having the given name.
// The returned slice aliases the Set and must not be retained across mutations.
func (s *Set) ValuesOf(name string) []Label {
	lo, hi := s.Range(name)
	return s.Labels[lo:hi]
}

// AddValue inserts the label (name, value) at its sorted position. If name
// ends in PrefixSuffix the suffix is stripped and the label is marked as a
// prefix match. AddValue is idempotent: inserting an existing (name, value)
// leaves the Set unchanged.
func (s *Set) AddValue(name, value string) {
	name, prefix := splitPrefixSuffix(name)

	ind := s.search(name, value)
	if ind != len(s.Labels) && s.Labels[ind].Name == name && s.Labels[ind].Value == value {
		return // Already present. The existing Prefix flag wins.
	}
	s.Labels = append(s.Labels, Label{})
	copy(s.Labels[ind+1:], s.Labels[ind:])
	s.Labels[ind] = Label{Name: name, Value: value, Prefix: prefix}
}

// SetValue replaces all labels having the given name with the single label
// (name, value). The PrefixSuffix convention of AddValue applies.
func (s *Set) SetValue(name, value string) {
	stripped, prefix := splitPrefixSuffix(name)

	lo, hi := s.Range(stripped)
	s.Labels = append(s.Labels[:lo], append(
		[]Label{{Name: stripped, Value: value, Prefix: prefix}},
		s.Labels[hi:]...)...)
}

// Remove deletes all labels having the given name.
func (s *Set) Remove(name string) {
	lo, hi := s.Range(name)
	s.Labels = append(s.Labels[:lo], s.Labels[hi:]...)
}

// ExpectOne returns the single, non-empty value of the given name.
// It returns ErrExpectedOne if zero or multiple values exist, and
// ErrEmptyValue if the single value is the empty string.
func (s *Set) ExpectOne(name string) (string, error) {
	lo, hi := s.Range(name)
	if hi-lo != 1 {
		return "", apperrors.Wrapf(ErrExpectedOne, "label %q has %d values", name, hi-lo)
	}
	if s.Labels[lo].Value == "" {
		return "", apperrors.Wrapf(ErrEmptyValue, "label %q", name)
	}
	return s.Labels[lo].Value, nil
}

// ValueOf returns the value of the given name, or "" if the name is absent.
// A present name is held to the same single, non-empty value rules as ExpectOne.
func (s *Set) ValueOf(name string) (string, error) {
	if lo, hi := s.Range(name); lo == hi {
		return "", nil
	}
	return s.ExpectOne(name)
}

// ExpectOneU32 extracts the single value of the given name as a uint32.
// The value must be exactly eight hexadecimal characters, as produced by
// EncodeHexU32, or ErrInvalidValue is returned.
func (s *Set) ExpectOneU32(name string) (uint32, error) {
	value, err := s.ExpectOne(name)
	if err != nil {
		return 0, err
	}
	if len(value) != 8 {
		return 0, apperrors.Wrapf(ErrInvalidValue,
			"label %q value %q must be exactly 8 hex characters", name, value)
	}
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0, apperrors.Wrapf(ErrInvalidValue,
			"label %q value %q must be exactly 8 hex characters", name, value)
	}
	return uint32(parsed), nil
}

// EncodeHexU32 encodes a uint32 in the fixed-width hexadecimal form expected
// by ExpectOneU32.
func EncodeHexU32(value uint32) string {
	return fmt.Sprintf("%08x", value)
}

// Validate confirms the Set invariant: sorted and unique on (name, value).
func (s Set) Validate() error {
	for i := 1; i < len(s.Labels); i++ {
		if !labelLess(s.Labels[i-1], s.Labels[i]) {
			return apperrors.Wrapf(apperrors.ErrInvalidInput,
				"labels are not sorted and unique at index %d (%q, %q)",
				i, s.Labels[i-1].Name, s.Labels[i].Name)
		}
	}
	return nil
}

// Validate confirms both selector sets uphold their invariants.
func (s Selector) Validate() error {
	if err := s.Include.Validate(); err != nil {
		return apperrors.Wrap(err, "include")
	}
	if err := s.Exclude.Validate(); err != nil {
		return apperrors.Wrap(err, "exclude")
	}
	return nil
}

// MarshalJSON encodes the Set as a bare array of labels.
func (s Set) MarshalJSON() ([]byte, error) {
	if s.Labels == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Labels)
}

// UnmarshalJSON decodes the Set from a bare array of labels, requiring that
// they already uphold the sorted-and-unique invariant.
func (s *Set) UnmarshalJSON(data []byte) error {
	s.Labels = nil
	if err := json.Unmarshal(data, &s.Labels); err != nil {
		return err
	}
	if len(s.Labels) == 0 {
		s.Labels = nil
	}
	return s.Validate()
}

// PercentEncode encodes a string for safe embedding within journal names and
// label values. Unreserved path-segment characters (RFC 3986 §3.3) pass
// through; all other bytes are %XX-escaped, including '/'.
func PercentEncode(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if c := value[i]; isPathSegmentByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

// isPathSegmentByte reports whether c may appear un-escaped in a URL path
// segment (and thus a journal name component).
func isPathSegmentByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~', '$', '&', '+', ':', '=', '@':
		return true
	}
	return false
}

// search returns the sorted insertion index of (name, value).
func (s *Set) search(name, value string) int {
	return sort.Search(len(s.Labels), func(i int) bool {
		if s.Labels[i].Name != name {
			return s.Labels[i].Name > name
		}
		return s.Labels[i].Value >= value
	})
}

// labelLess orders labels on (Name, Value), ignoring Prefix.
func labelLess(a, b Label) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Value < b.Value
}

// splitPrefixSuffix strips a trailing PrefixSuffix from name, reporting
// whether it was present.
func splitPrefixSuffix(name string) (string, bool) {
	if strings.HasSuffix(name, PrefixSuffix) {
		return strings.TrimSuffix(name, PrefixSuffix), true
	}
	return name, false
}
