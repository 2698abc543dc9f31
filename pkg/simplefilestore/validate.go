package simplefilestore

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Windows device names are rejected whether bare ("con") or with an
// extension ("con.txt"); either form is unusable on that platform.
var reservedFilenames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// ValidateFilename checks a user-facing filename against the storage rules:
// non-blank, no surrounding whitespace, at most MaxFilenameLength code
// points, no path separators or traversal, no control characters, and no
// reserved device names. Violations are *InvalidArgumentError.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidArgumentError{Field: "filename", Reason: "must not be blank"}
	}
	if name != strings.TrimSpace(name) {
		return &InvalidArgumentError{Field: "filename", Reason: "must not have leading or trailing whitespace"}
	}
	if utf8.RuneCountInString(name) > MaxFilenameLength {
		return &InvalidArgumentError{Field: "filename", Reason: "must be at most 255 characters"}
	}
	if strings.ContainsAny(name, "/\\") {
		return &InvalidArgumentError{Field: "filename", Reason: "must not contain path separators"}
	}
	if name == "." || name == ".." {
		return &InvalidArgumentError{Field: "filename", Reason: "must not be a path traversal name"}
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return &InvalidArgumentError{Field: "filename", Reason: "must not contain control characters"}
		}
	}
	base := strings.ToLower(name)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if _, reserved := reservedFilenames[base]; reserved {
		return &InvalidArgumentError{Field: "filename", Reason: "is a reserved device name"}
	}
	return nil
}

// NormalizeTags lower-cases, trims, de-duplicates and sorts the given tags.
// A nil or empty slice normalizes to an empty set. More than MaxTags
// distinct tags is an *InvalidArgumentError.
func NormalizeTags(tags []string) ([]string, error) {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	if len(set) > MaxTags {
		return nil, &InvalidArgumentError{Field: "tags", Reason: "at most 5 tags are allowed"}
	}
	normalized := make([]string, 0, len(set))
	for t := range set {
		normalized = append(normalized, t)
	}
	sort.Strings(normalized)
	return normalized, nil
}
