package common

import "strings"

// CityName normalises a user-typed city name: surrounding space is dropped
// and inner runs of whitespace become one space. The registry, the feed keys
// and the client cache all compare names in this form.
func CityName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsAnyFold reports whether s contains any of subs, ignoring case.
func ContainsAnyFold(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
