// Package tui renders a conversation view in the terminal with bubbletea.
// The model never talks to the API itself: it reads the view's derived state
// on a short refresh tick and forwards drafts and sends to it.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opsdesk/teamchat/internal/chat"
	"github.com/opsdesk/teamchat/internal/session"
)

// RefreshInterval is how often the screen re-reads the view.
const RefreshInterval = 200 * time.Millisecond

// Conversation is the part of conversation.View the screen uses.
type Conversation interface {
	Enabled() bool
	CurrentUser() *session.Session
	SetDraft(content string)
	Draft() string
	Send(ctx context.Context) (*chat.Message, error)
	Messages() []chat.Message
	Typing() []chat.TypingIndicator
	Notice() string
	IsOwn(m chat.Message) bool
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	authorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AFAFAF"))
	ownStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	typingStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#888888"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Align(lipgloss.Center)
)

type tickMsg time.Time

type sentMsg struct{ err error }

// Model is the bubbletea model for one conversation.
type Model struct {
	conv     Conversation
	ctx      context.Context
	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
	sending  bool
	lastBody string
}

// New creates a model for conv. ctx bounds send requests.
func New(ctx context.Context, conv Conversation) Model {
	in := textinput.New()
	in.Placeholder = "Type a message"
	in.CharLimit = chat.MaxBodyChars
	in.Prompt = "> "
	in.Focus()

	return Model{
		conv:     conv,
		ctx:      ctx,
		input:    in,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the refresh tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

// Update handles input, refresh ticks and send results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case sentMsg:
		m.sending = false
		// The view clears its draft on success unless the user kept typing.
		m.input.SetValue(m.conv.Draft())
		m.input.CursorEnd()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.sending || !m.conv.Enabled() {
				return m, nil
			}
			m.sending = true
			return m, m.send()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if v := m.input.Value(); v != m.conv.Draft() {
			m.conv.SetDraft(v)
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vpCmd)
}

func (m Model) send() tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		_, err := conv.Send(ctx)
		return sentMsg{err: err}
	}
}

func (m *Model) refresh() {
	body := RenderMessages(m.conv, m.width)
	if body == m.lastBody {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.lastBody = body
	m.viewport.SetContent(body)
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the screen.
func (m Model) View() string {
	var b strings.Builder

	title := "teamchat (logged out)"
	if u := m.conv.CurrentUser(); u != nil {
		title = "teamchat · " + u.DisplayName
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(typingStyle.Render(TypingLine(m.conv.Typing())))
	b.WriteString("\n")
	if n := m.conv.Notice(); n != "" {
		b.WriteString(noticeStyle.Render(n))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}

// RenderMessages formats the conversation, oldest first.
func RenderMessages(conv Conversation, width int) string {
	msgs := conv.Messages()
	if len(msgs) == 0 {
		return emptyStyle.Width(width).Render("No messages yet.")
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		name := authorStyle.Render(msg.AuthorDisplayName)
		if conv.IsOwn(msg) {
			name = ownStyle.Render(msg.AuthorDisplayName)
		}
		b.WriteString(timeStyle.Render(msg.CreatedAt.Local().Format("15:04")))
		b.WriteString(" ")
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(msg.Body)
	}
	return b.String()
}

// TypingLine describes who is typing, or "" when nobody is.
func TypingLine(ind []chat.TypingIndicator) string {
	switch len(ind) {
	case 0:
		return ""
	case 1:
		return ind[0].AuthorDisplayName + " is typing..."
	case 2:
		return ind[0].AuthorDisplayName + " and " + ind[1].AuthorDisplayName + " are typing..."
	default:
		return "Several people are typing..."
	}
}
