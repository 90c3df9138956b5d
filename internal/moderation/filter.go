// Package moderation screens chat messages for abusive language and spam.
// The chat API stores every message; the moderator checks it afterwards and
// flags or mutes the author.
package moderation

import (
	"strings"
	"unicode"
)

// Reasons reported in FilterResult.Reason.
const (
	ReasonBlockedKeyword = "blocked_keyword"
	ReasonSpamPattern    = "spam_pattern"
)

// defaultBlocklist is the workplace blocklist. Multi-word entries are matched
// as consecutive words.
var defaultBlocklist = []string{
	"asshole",
	"bastard",
	"bitch",
	"dumbass",
	"fuck",
	"idiot",
	"moron",
	"retard",
	"shit",
	"kill yourself",
	"go die",
	"send nudes",
	"bomb threat",
	"free bitcoin",
	"gift card codes",
	"wire the money",
}

// leetMap folds common character substitutions back to letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// Filter is a keyword and phrase blocklist plus spam heuristics. It is
// immutable after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases [][]string
	trusted map[string]struct{}
}

// FilterOption customises a Filter.
type FilterOption func(*Filter)

// WithTrustedDomains exempts links to the given domains and their
// subdomains from the link checks. Company intranet and tooling hosts
// belong here.
func WithTrustedDomains(domains ...string) FilterOption {
	return func(f *Filter) {
		for _, d := range domains {
			d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
			if d != "" {
				f.trusted[d] = struct{}{}
			}
		}
	}
}

// NewFilter returns a filter with the default blocklist.
func NewFilter(opts ...FilterOption) *Filter {
	return NewFilterWithTerms(defaultBlocklist, opts...)
}

// NewFilterWithTerms returns a filter for terms. Blank terms are ignored.
func NewFilterWithTerms(terms []string, opts ...FilterOption) *Filter {
	f := &Filter{
		words:   make(map[string]struct{}),
		trusted: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(f)
	}
	for _, term := range terms {
		tokens := tokenizePlain(term)
		switch len(tokens) {
		case 0:
		case 1:
			f.words[tokens[0]] = struct{}{}
		default:
			f.phrases = append(f.phrases, tokens)
		}
	}
	return f
}

// Check screens text. Blocklist hits take priority over spam patterns.
func (f *Filter) Check(text string) FilterResult {
	plain := tokenizePlain(text)
	leet := tokenizeLeet(text)
	for i, tok := range leet {
		leet[i] = normalizeLeet(tok)
	}

	for _, tokens := range [][]string{plain, leet} {
		if term, ok := f.matchWords(tokens); ok {
			return FilterResult{Blocked: true, Reason: ReasonBlockedKeyword, Term: term}
		}
		if term, ok := f.matchPhrases(tokens); ok {
			return FilterResult{Blocked: true, Reason: ReasonBlockedKeyword, Term: term}
		}
	}

	return f.checkSpamPatterns(text)
}

func (f *Filter) matchWords(tokens []string) (string, bool) {
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return tok, true
		}
	}
	return "", false
}

func (f *Filter) matchPhrases(tokens []string) (string, bool) {
	for _, phrase := range f.phrases {
		for i := 0; i+len(phrase) <= len(tokens); i++ {
			if equalTokens(tokens[i:i+len(phrase)], phrase) {
				return strings.Join(phrase, " "), true
			}
		}
	}
	return "", false
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalizeLeet lowercases s and folds leetspeak substitutions.
func normalizeLeet(s string) string {
	return strings.Map(func(r rune) rune {
		if m, ok := leetMap[r]; ok {
			return m
		}
		return unicode.ToLower(r)
	}, s)
}

// tokenizePlain splits on anything that is not a letter or digit and
// lowercases the result.
func tokenizePlain(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// tokenizeLeet splits on whitespace only, keeping substitution characters
// inside words, and trims ordinary punctuation from both ends.
func tokenizeLeet(s string) []string {
	var out []string
	for _, f := range strings.Fields(s) {
		f = strings.TrimFunc(f, func(r rune) bool {
			_, leet := leetMap[r]
			return !leet && !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
