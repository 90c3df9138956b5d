package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type spamCase struct {
	name    string
	input   string
	blocked bool
	term    string
}

func runSpamCases(t *testing.T, f *Filter, cases []spamCase) {
	t.Helper()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			r := f.Check(tt.input)
			assert.Equal(t, tt.blocked, r.Blocked, "reason=%s term=%s", r.Reason, r.Term)
			if tt.blocked {
				assert.Equal(t, ReasonSpamPattern, r.Reason)
				assert.Equal(t, tt.term, r.Term)
			}
		})
	}
}

func TestSpam_Links(t *testing.T) {
	runSpamCases(t, NewFilterWithTerms(nil), []spamCase{
		{"shortener", "quick survey https://bit.ly/3xYz", true, "suspicious_link"},
		{"shortener without scheme", "see tinyurl.com/abc123", true, "suspicious_link"},
		{"throwaway tld", "claim here https://payroll-update.xyz/login", true, "suspicious_link"},
		{"www throwaway tld", "go to www.free-gifts.top/now", true, "suspicious_link"},
		{"docs link", "spec is at https://docs.google.com/document/d/1abc", false, ""},
		{"repo link", "fixed in github.com/opsdesk/teamchat/pull/42", false, ""},
		{"version string", "upgrade to v2.0", false, ""},
		{"decimal", "margin is 3.14 percent", false, ""},
		{"trailing punctuation", "see https://example.com/runbook.", false, ""},
	})
}

func TestSpam_LinkFlood(t *testing.T) {
	f := NewFilterWithTerms(nil)
	msg := "deals: https://a.com/x https://b.com/x https://c.com/x https://d.com/x"
	r := f.Check(msg)
	assert.True(t, r.Blocked)
	assert.Equal(t, "link_flood", r.Term)

	// The same host linked many times is a list of tickets, not a flood.
	tickets := "https://jira.example.com/T-1 https://jira.example.com/T-2 https://jira.example.com/T-3 https://jira.example.com/T-4"
	assert.False(t, f.Check(tickets).Blocked)
}

func TestSpam_TrustedDomains(t *testing.T) {
	f := NewFilterWithTerms(nil, WithTrustedDomains("opsdesk.top", " WWW.Corp.Example "))

	runSpamCases(t, f, []spamCase{
		{"trusted apex", "dashboard at https://opsdesk.top/grafana", false, ""},
		{"trusted subdomain", "wiki.opsdesk.top/oncall has the rota", false, ""},
		{"trusted normalized", "https://intranet.corp.example/a https://hr.corp.example/b https://it.corp.example/c https://fin.corp.example/d", false, ""},
		{"lookalike is not trusted", "https://opsdesk.top.evil.xyz/login", true, "suspicious_link"},
	})
}

func TestSpam_ContactBait(t *testing.T) {
	runSpamCases(t, NewFilterWithTerms(nil), []spamCase{
		{"whatsapp number", "earn from home, whatsapp +1-555-123-4567", true, "contact_bait"},
		{"telegram dotted", "DM me on Telegram 555.123.4567", true, "contact_bait"},
		{"plain phone number", "the vendor hotline is (555) 123-4567", false, ""},
		{"extension", "call me on x4471", false, ""},
		{"short extension with cue", "text me at ext 204", false, ""},
		{"order number", "order 100 units", false, ""},
	})
}

func TestSpam_MentionFlood(t *testing.T) {
	f := NewFilterWithTerms(nil)
	assert.False(t, f.Check("@ana @ben @cy can you review?").Blocked)

	r := f.Check("@a @b @c @d @e @f check this out")
	assert.True(t, r.Blocked)
	assert.Equal(t, "mention_flood", r.Term)
}

func TestSpam_Flooding(t *testing.T) {
	runSpamCases(t, NewFilterWithTerms(nil), []spamCase{
		{"repeated letters", "hellooooooo", true, "char_flood"},
		{"mixed case letters", "nooOOOo", true, "char_flood"},
		{"five letters", "aaaaa", false, ""},
		{"separator", "------------", false, ""},
		{"zero padded id", "batch 000000123", false, ""},
		{"word x4", "buy buy buy buy", true, "word_flood"},
		{"word case and punctuation", "BUY, buy. Buy! buy", true, "word_flood"},
		{"word x3", "no no no, not that branch", false, ""},
		{"excitement", "wow!!! that's great!!", false, ""},
	})
}

func TestSpam_CodeSpansIgnored(t *testing.T) {
	f := NewFilterWithTerms(nil)

	log := "```\nERROR ERROR ERROR ERROR retry\nzzzzzzzz\n```"
	assert.False(t, f.Check("build failed:\n"+log).Blocked)
	assert.False(t, f.Check("run `curl https://bit.ly/x` locally").Blocked)
	assert.True(t, f.Check("build failed, see https://bit.ly/x").Blocked)
}

func TestSpam_EdgeCases(t *testing.T) {
	runSpamCases(t, NewFilterWithTerms(nil), []spamCase{
		{"empty", "", false, ""},
		{"spaces only", "   ", false, ""},
		{"newlines", "hello\nworld", false, ""},
		{"money", "it costs $5.99", false, ""},
		{"long status", strings.Repeat("deploy finished on node ", 5), false, ""},
	})
}

func TestSpam_KeywordTakesPriority(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword"})

	r := f.Check("badword badword badword badword")
	assert.Equal(t, ReasonBlockedKeyword, r.Reason)

	r = f.Check("visit https://bit.ly/free")
	assert.Equal(t, ReasonSpamPattern, r.Reason)
	assert.Equal(t, "suspicious_link", r.Term)
}
