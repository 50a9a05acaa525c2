package labels

import (
	"regexp"
	"strings"
)

// reserved lists the characters the content API rejects in label names.
const reserved = "(!#&)*.:;<>?@[]^,-"

var enumeratedPattern = regexp.MustCompile(`^.* - #\d+$`)

// Derive converts a page title into a label name
// Rules:
// - Reserved punctuation becomes a space
// - Leading/trailing whitespace is dropped
// - Remaining whitespace runs collapse to a single underscore
// - Enumerated titles ("<name> - #<digits>") lose their trailing number
func Derive(title string) string {
	label := Normalize(title)
	if IsEnumerated(title) {
		label = dropLastToken(label)
	}
	return label
}

// Normalize applies the punctuation and whitespace rules without the
// enumerated-title handling.
func Normalize(title string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(reserved, r) {
			return ' '
		}
		return r
	}, title)
	return strings.Join(strings.Fields(mapped), "_")
}

// IsEnumerated reports whether the title ends in " - #<digits>"
func IsEnumerated(title string) bool {
	return enumeratedPattern.MatchString(title)
}

func dropLastToken(label string) string {
	idx := strings.LastIndex(label, "_")
	if idx < 0 {
		return ""
	}
	return label[:idx]
}
