package traceability

import (
	"regexp"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "for": true, "from": true, "has": true,
	"have": true, "in": true, "into": true, "is": true, "it": true, "its": true,
	"must": true, "no": true, "not": true, "of": true, "on": true, "or": true,
	"should": true, "so": true, "that": true, "the": true, "their": true, "then": true,
	"there": true, "this": true, "to": true, "user": true, "users": true, "when": true,
	"will": true, "with": true, "within": true, "without": true, "all": true, "any": true,
	"each": true, "every": true, "able": true, "system": true, "shall": true,
}

var (
	numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

	identifierPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]+(?:\.[A-Za-z_][A-Za-z0-9_]+)+\b`), // dotted.name
		regexp.MustCompile(`\b[a-z0-9]+(?:_[a-z0-9]+)+\b`),                        // snake_case
		regexp.MustCompile(`\b[a-z]+(?:[A-Z][a-z0-9]+)+\b`),                       // camelCase
		regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`),                   // SCREAMING_CASE
	}
	quotedPattern = regexp.MustCompile("[\"'`]([^\"'`\\s][^\"'`]{1,}[^\"'`\\s])[\"'`]")
)

// normalize lower-cases s and collapses everything that is not a letter or a
// digit into single spaces.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// keywords returns the distinct significant words of s in order. Plural "s"
// is trimmed so "click" and "clicks" compare equal.
func keywords(s string) []string {
	seen := map[string]bool{}
	var out []string
	for _, word := range strings.Fields(normalize(s)) {
		if len(word) < 3 || stopwords[word] || isNumber(word) {
			continue
		}
		word = stem(word)
		if !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}
	return out
}

func stem(word string) string {
	if len(word) > 4 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
		return strings.TrimSuffix(word, "s")
	}
	return word
}

func isNumber(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return word != ""
}

func numbers(s string) []string {
	return numberPattern.FindAllString(s, -1)
}

// identifiers extracts structural names: dotted, snake_case, camelCase,
// SCREAMING_CASE and quoted tokens. Results are lower-cased.
func identifiers(s string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, pattern := range identifierPatterns {
		for _, match := range pattern.FindAllString(s, -1) {
			add(match)
		}
	}
	for _, match := range quotedPattern.FindAllStringSubmatch(s, -1) {
		add(match[1])
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	var out []string
	for _, v := range a {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

// overlap counts shared keywords between two texts.
func overlap(a, b string) int {
	return len(intersect(keywords(a), keywords(b)))
}

// containsPhrase reports whether the normalized phrase appears in normalized
// text on word boundaries.
func containsPhrase(text, phrase string) bool {
	p := normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+p+" ")
}
