// Package detector flags Chinese resident ID numbers and phone numbers in extracted text.
package detector

import "regexp"

var (
	idCardPattern = regexp.MustCompile(`\b[1-9]\d{5}(18|19|20)\d{2}((0[1-9])|(1[0-2]))(([0-2][1-9])|10|20|30|31)\d{3}[0-9Xx]\b`)
	phonePattern  = regexp.MustCompile(`\b(?:\+?86[-\s]?)?(?:1[3-9]\d{9}|(?:[0-9]{3,4}[-\s]?)?[0-9]{7,8})\b`)
)

// MatchIDCard reports whether text contains an 18-character resident ID number.
func MatchIDCard(text string) bool {
	return text != "" && idCardPattern.MatchString(text)
}

// MatchPhone reports whether text contains a mobile or landline number.
func MatchPhone(text string) bool {
	return text != "" && phonePattern.MatchString(text)
}
