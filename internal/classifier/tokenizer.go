package classifier

import "strings"

// tokenSeparators are the characters the tokenizer splits file-activity
// names on (spec.md §4.7's "context extraction" tokenizer).
const tokenSeparators = " -_./\\|,:;()[]{}"

// Tokenize lowercases s, splits on tokenSeparators, and keeps tokens of
// length >= 2 that contain at least one alphabetic character — discarding
// bare numbers and punctuation fragments that would otherwise pollute the
// token evidence table.
func Tokenize(s string) []string {
	lower := strings.ToLower(s)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return strings.ContainsRune(tokenSeparators, r)
	})

	var out []string
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if !containsAlpha(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func containsAlpha(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
