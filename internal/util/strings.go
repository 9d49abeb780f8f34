package util

import "strings"

// Under2Camel converts an underscored name to CamelCase, the way collection
// names become type names: "order_item" -> "OrderItem". Each segment is
// capitalized with the rest lowercased; empty segments become "_".
func Under2Camel(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, w := range strings.Split(s, "_") {
		if w == "" {
			b.WriteByte('_')
			continue
		}
		b.WriteString(Capitalize(w))
	}
	return b.String()
}

// Capitalize upper-cases the first letter of s and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return string(r)
}
