package intent

import (
	"regexp"
	"strings"
)

var searchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(what|who|when|where|which)\s+(is|are|was|were|did|does)\b`),
	regexp.MustCompile(`^how\s+(to|do|does|did|many|much)\b`),
	regexp.MustCompile(`^tell me about\b`),
	regexp.MustCompile(`^(search|look up|google|find out)\b`),
	regexp.MustCompile(`\b(latest|recent|current|today'?s?|this week'?s?)\s+(news|events|version|release|price|prices|updates?)\b`),
}

// LooksLikeSearchQuery reports whether utterance reads like a lookup that
// benefits from web search, and returns the query to use.
func LooksLikeSearchQuery(utterance string) (bool, string) {
	text := strings.ToLower(strings.TrimSpace(utterance))
	if text == "" {
		return false, ""
	}
	for _, re := range searchPatterns {
		if re.MatchString(text) {
			return true, searchQuery(utterance)
		}
	}
	return false, ""
}

func searchQuery(utterance string) string {
	q := strings.TrimSpace(utterance)
	q = strings.TrimRight(q, "?!. ")
	return truncateRunes(q, 200)
}
