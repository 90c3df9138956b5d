package moderation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

var (
	// linkPattern finds explicit links and bare host/path references.
	// Bare hosts need a path so that "v2.0" and "3.14" are not links.
	linkPattern = regexp.MustCompile(`(?i)\b(?:https?://[^\s<>]+|www\.[^\s<>]+|[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}/[^\s<>]*)`)

	// phonePattern matches full dialable numbers of ten digits or more.
	// Internal extensions like "x4471" or "ext 204" stay below that.
	phonePattern = regexp.MustCompile(`(?:^|[\s:])(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)

	codeSpanPattern = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")

	mentionPattern = regexp.MustCompile(`(?:^|\s)@[\w.-]+`)
)

// shortenerHosts hide the real destination of a link.
var shortenerHosts = map[string]struct{}{
	"bit.ly":      {},
	"cutt.ly":     {},
	"goo.gl":      {},
	"is.gd":       {},
	"ow.ly":       {},
	"rb.gy":       {},
	"t.co":        {},
	"tiny.cc":     {},
	"tinyurl.com": {},
}

// suspectTLDs are free or throwaway registries that show up in phishing.
var suspectTLDs = map[string]struct{}{
	"cf": {}, "click": {}, "ga": {}, "gq": {}, "ml": {}, "tk": {}, "top": {}, "xyz": {},
}

// contactCues turn a phone number into an off-platform solicitation.
var contactCues = []string{"whatsapp", "telegram", "text me", "dm me", "call now", "wechat"}

const (
	charFloodThreshold    = 6
	wordFloodThreshold    = 4
	linkFloodThreshold    = 4
	mentionFloodThreshold = 6
)

type spamCheck struct {
	name  string
	match func(f *Filter, text string) bool
}

// spamChecks run in order; the first match wins.
var spamChecks = []spamCheck{
	{name: "suspicious_link", match: (*Filter).hasSuspiciousLink},
	{name: "link_flood", match: (*Filter).hasLinkFlood},
	{name: "contact_bait", match: func(_ *Filter, text string) bool { return hasContactBait(text) }},
	{name: "mention_flood", match: func(_ *Filter, text string) bool { return hasMentionFlood(text) }},
	{name: "char_flood", match: func(_ *Filter, text string) bool { return hasCharFlood(text) }},
	{name: "word_flood", match: func(_ *Filter, text string) bool { return hasWordFlood(text) }},
}

// checkSpamPatterns returns a blocking result for the first matching check.
// Code spans are ignored: pasted logs and diffs repeat by nature.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	prose := codeSpanPattern.ReplaceAllString(text, " ")
	for _, sc := range spamChecks {
		if sc.match(f, prose) {
			return FilterResult{
				Blocked: true,
				Reason:  ReasonSpamPattern,
				Term:    sc.name,
			}
		}
	}
	return FilterResult{}
}

// untrustedHosts returns the hosts of links in text outside the trusted
// domains, in order of appearance.
func (f *Filter) untrustedHosts(text string) []string {
	var hosts []string
	for _, raw := range linkPattern.FindAllString(text, -1) {
		host := linkHost(raw)
		if host == "" || f.trusts(host) {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}

func (f *Filter) hasSuspiciousLink(text string) bool {
	for _, host := range f.untrustedHosts(text) {
		if _, ok := shortenerHosts[host]; ok {
			return true
		}
		if _, ok := suspectTLDs[host[strings.LastIndexByte(host, '.')+1:]]; ok {
			return true
		}
	}
	return false
}

func (f *Filter) hasLinkFlood(text string) bool {
	distinct := make(map[string]struct{})
	for _, host := range f.untrustedHosts(text) {
		distinct[host] = struct{}{}
	}
	return len(distinct) >= linkFloodThreshold
}

// trusts reports whether host is a trusted domain or one of its subdomains.
func (f *Filter) trusts(host string) bool {
	for d := range f.trusted {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// linkHost extracts the lowercased host of a matched link.
func linkHost(raw string) string {
	raw = strings.TrimRight(raw, ".,;:!?)")
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func hasContactBait(text string) bool {
	if !phonePattern.MatchString(text) {
		return false
	}
	lower := strings.ToLower(text)
	for _, cue := range contactCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func hasMentionFlood(text string) bool {
	distinct := make(map[string]struct{})
	for _, m := range mentionPattern.FindAllString(text, -1) {
		distinct[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return len(distinct) >= mentionFloodThreshold
}

// hasCharFlood reports a run of identical letters. Punctuation and digit
// runs such as "-----" or "0000" are separators and IDs, not flooding.
func hasCharFlood(text string) bool {
	count := 0
	prev := rune(-1)
	for _, r := range text {
		r = unicode.ToLower(r)
		if !unicode.IsLetter(r) {
			count, prev = 0, -1
			continue
		}
		if r == prev {
			count++
		} else {
			count, prev = 1, r
		}
		if count >= charFloodThreshold {
			return true
		}
	}
	return false
}

// hasWordFlood reports the same word repeated back to back,
// case-insensitively and ignoring trailing punctuation.
func hasWordFlood(text string) bool {
	count := 0
	prev := ""
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(strings.TrimFunc(w, unicode.IsPunct))
		if w == "" {
			continue
		}
		if w == prev {
			count++
		} else {
			count, prev = 1, w
		}
		if count >= wordFloodThreshold {
			return true
		}
	}
	return false
}
