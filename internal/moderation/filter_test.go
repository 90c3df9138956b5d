package moderation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	require.NotNil(t, f)
	assert.NotEmpty(t, f.words)
	assert.NotEmpty(t, f.phrases)
}

func TestNewFilterWithTerms_SplitsWordsAndPhrases(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "  ", "Valid", "go die"})

	assert.Len(t, f.words, 1)
	assert.Contains(t, f.words, "valid")
	require.Len(t, f.phrases, 1)
	assert.Equal(t, []string{"go", "die"}, f.phrases[0])
}

func TestCheck_Keywords(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BaDwOrD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"clean message", "hello world", false, ""},
		{"longer word", "badwording is fine", false, ""},
		{"embedded", "mybadword", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.Check(tt.input)
			assert.Equal(t, tt.blocked, r.Blocked)
			if tt.blocked {
				assert.Equal(t, tt.term, r.Term)
				assert.Equal(t, ReasonBlockedKeyword, r.Reason)
			}
		})
	}
}

func TestCheck_Phrases(t *testing.T) {
	f := NewFilterWithTerms([]string{"kill yourself", "go die"})

	tests := []struct {
		input   string
		blocked bool
	}{
		{"kill yourself", true},
		{"you should KILL YOURSELF now", true},
		{"go die already", true},
		{"kill yourselves", false},
		{"kill and yourself", false},
		{"we go live friday", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.blocked, f.Check(tt.input).Blocked, tt.input)
	}
}

func TestCheck_Leetspeak(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive", "go die"})

	for _, input := range []string{"b@dw0rd", "off3n$ive", "offens1ve", "offens!ve", "0ff3n$!v3", "g0 d!e"} {
		r := f.Check(input)
		assert.True(t, r.Blocked, input)
		assert.Equal(t, ReasonBlockedKeyword, r.Reason, input)
	}
}

func TestCheck_WorkplaceChatIsClean(t *testing.T) {
	f := NewFilter()

	for _, msg := range []string{
		"can someone approve PO 4471?",
		"the invoice run finished",
		"I need to assess the stock levels",
		"the grape order arrives Tuesday",
		"let's sync after standup",
		"shipping class changed for SKU 12",
		"",
	} {
		r := f.Check(msg)
		assert.False(t, r.Blocked, "%q blocked (reason=%s term=%s)", msg, r.Reason, r.Term)
	}
}

func TestCheck_DefaultBlocklist(t *testing.T) {
	f := NewFilter()

	for _, msg := range []string{"you idiot", "sh!t", "kill yourself", "send nudes", "free bitcoin here", "bomb threat"} {
		assert.True(t, f.Check(msg).Blocked, msg)
	}
}

func TestNormalizeLeet(t *testing.T) {
	tests := map[string]string{
		"hello":  "hello",
		"h3ll0":  "hello",
		"@ss":    "ass",
		"$h!t":   "shit",
		"UPPER":  "upper",
		"ch@ng3": "change",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeLeet(in), in)
	}
}

func TestTokenizePlain(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, tokenizePlain("Hello, world!"))
	assert.Equal(t, []string{"spaced", "out"}, tokenizePlain("  spaced  out  "))
	assert.Equal(t, []string{"hello", "world"}, tokenizePlain("hello---world"))
	assert.Empty(t, tokenizePlain(""))
}

func TestTokenizeLeet(t *testing.T) {
	assert.Equal(t, []string{"b@dw0rd"}, tokenizeLeet("b@dw0rd"))
	assert.Equal(t, []string{"hello", "$h!t", "bye"}, tokenizeLeet("hello $h!t bye."))
	assert.Empty(t, tokenizeLeet(" ... "))
}

func BenchmarkCheck(b *testing.B) {
	f := NewFilter()
	msg := "morning all, the Q3 inventory report is in the shared drive, please review before Friday"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}

func BenchmarkCheck_LongMessage(b *testing.B) {
	f := NewFilter()
	msg := strings.Repeat("this is a perfectly normal status update with no bad content. ", 8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}
