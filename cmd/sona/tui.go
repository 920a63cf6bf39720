// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/room"
	"github.com/sona-chat/sona/timeline"
)

// Messages injected into the bubbletea loop by the engine callbacks.
type (
	timelineUpdatedMsg struct{}
	connectionMsg      struct{ state event.ConnectionState }
	membershipMsg      struct{ payload event.MembershipPayload }
	loadFailedMsg      struct {
		err          error
		accessDenied bool
	}
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	connectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	degradedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	authorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	localStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	systemStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	readStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	typistStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("245"))
	reactionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
)

// model is the terminal UI. The room is attached before Run; every
// read of timeline or presence state goes through the room's snapshot
// accessors inside the bubbletea goroutine.
type model struct {
	roomID    string
	localUser event.Sender
	room      *room.Room

	viewport viewport.Model
	input    textinput.Model

	connState event.ConnectionState
	notice    string
	ready     bool
	width     int
	height    int
}

func newModel(roomID string, localUser event.Sender) *model {
	input := textinput.New()
	input.Placeholder = "Message"
	input.Prompt = "> "
	input.Focus()

	return &model{
		roomID:    roomID,
		localUser: localUser,
		input:     input,
		connState: event.Connected,
	}
}

func (m *model) attachRoom(r *room.Room) { m.room = r }

func (m *model) Init() tea.Cmd { return textinput.Blink }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeLines := 4 // header, typing line, input, notice
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeLines)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeLines
		}
		m.refreshTimeline()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		case tea.KeyCtrlR:
			m.retryLastFailed()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		// Every edit feeds the typing coordinator; it decides whether
		// a start or stop signal actually goes out.
		m.room.Composer().SetText(m.input.Value())
		return m, cmd

	case timelineUpdatedMsg:
		m.refreshTimeline()
		return m, nil

	case connectionMsg:
		m.connState = msg.state
		return m, nil

	case membershipMsg:
		m.notice = membershipNotice(msg.payload)
		return m, nil

	case loadFailedMsg:
		if msg.accessDenied {
			m.notice = "You no longer have access to this room."
		} else {
			m.notice = fmt.Sprintf("Failed to load history: %v", msg.err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// submit sends the composed text. The optimistic record shows up via
// the OnUpdate callback; the input clears immediately either way.
func (m *model) submit() tea.Cmd {
	body := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if err := m.room.Send(context.Background(), body); err != nil {
		m.notice = fmt.Sprintf("Send failed: %v", err)
	}
	return nil
}

// retryLastFailed retries the most recent failed record, if any.
func (m *model) retryLastFailed() {
	messages := m.room.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Status == timeline.StatusFailed {
			if err := m.room.Retry(context.Background(), messages[i].ID); err != nil {
				m.notice = fmt.Sprintf("Retry failed: %v", err)
			}
			return
		}
	}
}

func (m *model) refreshTimeline() {
	if !m.ready || m.room == nil {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTimeline())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderTypists())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m *model) renderHeader() string {
	state := connectedStyle.Render("● connected")
	switch m.connState {
	case event.Disconnected:
		state = failedStyle.Render("● disconnected")
	case event.Reconnecting:
		state = degradedStyle.Render("● reconnecting")
	}
	return headerStyle.Render("#"+m.roomID) + "  " + state
}

func (m *model) renderTypists() string {
	typists := m.room.Typists()
	switch len(typists) {
	case 0:
		return ""
	case 1:
		return typistStyle.Render(typists[0] + " is typing...")
	default:
		return typistStyle.Render(strings.Join(typists, ", ") + " are typing...")
	}
}

func (m *model) renderTimeline() string {
	messages := m.room.Messages()
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		lines = append(lines, m.renderMessage(message))
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderMessage(message timeline.Message) string {
	if message.Kind == event.KindSystem {
		return systemStyle.Render("-- " + message.Body + " --")
	}

	author := message.AuthorDisplayName
	if author == "" {
		author = message.AuthorID
	}
	style := authorStyle
	if message.AuthorID == m.localUser.ID {
		style = localStyle
	}

	line := fmt.Sprintf("%s %s  %s%s",
		statusStyle.Render(message.CreatedAt.Local().Format("15:04")),
		style.Render(author),
		message.Body,
		m.renderStatus(message),
	)
	if len(message.Reactions) > 0 {
		line += "\n       " + renderReactions(message.Reactions)
	}
	return line
}

// renderStatus marks delivery progress on the local user's messages.
func (m *model) renderStatus(message timeline.Message) string {
	if message.AuthorID != m.localUser.ID {
		return ""
	}
	switch message.Status {
	case timeline.StatusSending:
		return statusStyle.Render("  ○")
	case timeline.StatusSent:
		return statusStyle.Render("  ✓")
	case timeline.StatusDelivered:
		return statusStyle.Render("  ✓✓")
	case timeline.StatusRead:
		return readStyle.Render("  ✓✓")
	case timeline.StatusFailed:
		return failedStyle.Render("  ✗ failed (ctrl+r to retry)")
	}
	return ""
}

func renderReactions(reactions []event.ReactionEntry) string {
	parts := make([]string, 0, len(reactions))
	for _, reaction := range reactions {
		part := fmt.Sprintf("%s %d", reaction.Emoji, reaction.Count)
		if reaction.ViewerReacted {
			part = "[" + part + "]"
		}
		parts = append(parts, part)
	}
	return reactionStyle.Render(strings.Join(parts, "  "))
}

func membershipNotice(payload event.MembershipPayload) string {
	switch payload.Action {
	case event.MemberKicked:
		return "You were removed from this room."
	case event.MemberBanned:
		return "You were banned from this room."
	case event.RoomClosed:
		return "This room has been closed."
	case event.RoomExpiring:
		return "This room is about to expire."
	}
	return string(payload.Action)
}
