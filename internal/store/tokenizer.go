package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches runs of letters and digits in any script.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// TokenizeText splits natural-language text into lowercase index tokens.
// Alphabetic runs become one token each; Han runs are emitted as
// single-character unigrams so unsegmented CJK text stays searchable.
// Non-CJK tokens shorter than minLength are dropped.
func TokenizeText(text string, minLength int) []string {
	var tokens []string

	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitScripts(word) {
			if isHan([]rune(t)[0]) {
				tokens = append(tokens, t)
				continue
			}
			lower := strings.ToLower(t)
			if len(lower) >= minLength {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// splitScripts breaks a mixed token into alphabetic runs and Han unigrams.
func splitScripts(token string) []string {
	var result []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			result = append(result, current.String())
			current.Reset()
		}
	}

	for _, r := range token {
		if isHan(r) {
			flush()
			result = append(result, string(r))
			continue
		}
		current.WriteRune(r)
	}
	flush()

	return result
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
