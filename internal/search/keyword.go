package search

import "strings"

// tokenize splits text into lowercase terms, filtering stopwords and tokens
// of two characters or fewer.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

// isAlphanumeric returns true if the rune is alphanumeric or underscore.
func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
}

// isStopword returns true if the token is a common English stopword.
func isStopword(token string) bool {
	return stopwords[token]
}

// termOverlap scores a document as the fraction of unique query terms that
// appear in it, in [0,1]. Duplicate query terms count once.
func termOverlap(queryTokens []string, docText string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	docSet := make(map[string]bool)
	for _, token := range tokenize(docText) {
		docSet[token] = true
	}

	unique := make(map[string]bool, len(queryTokens))
	matched := 0
	for _, token := range queryTokens {
		if unique[token] {
			continue
		}
		unique[token] = true
		if docSet[token] {
			matched++
		}
	}
	return float64(matched) / float64(len(unique))
}
