package console

import (
	"fmt"
	"strings"

	"gpt-relay/internal/relay"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	titleStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	separatorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5E6472"))
	placeholderStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	errorTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E74C3C"))
	hintStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7A85"))
)

// chromeHeight 是标题行与状态行占用的高度。
const chromeHeight = 2

// Model 是预览界面的 Bubble Tea 模型。
type Model struct {
	title    string
	spin     spinner.Model
	viewport viewport.Model
	width    int
	height   int

	ids   []string
	pages map[string]relay.Page

	finished     bool
	info         relay.Info
	err          error
	cancel       func()
	quitOnFinish bool
}

// NewModel builds the model. cancel is called when the user interrupts a
// running relay.
func NewModel(title string, cancel func()) *Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	return &Model{
		title:    title,
		spin:     spin,
		viewport: viewport.New(80, 20),
		width:    80,
		pages:    make(map[string]relay.Page),
		cancel:   cancel,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeHeight)
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case pageMsg:
		if _, ok := m.pages[msg.id]; !ok {
			m.ids = append(m.ids, msg.id)
		}
		m.pages[msg.id] = msg.page
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case finishedMsg:
		m.finished = true
		m.info = msg.info
		m.err = msg.err
		if m.quitOnFinish {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if !m.finished {
				if m.cancel != nil {
					m.cancel()
				}
				return m, nil
			}
			return m, tea.Quit
		case "q":
			if m.finished {
				return m, tea.Quit
			}
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	header := titleStyle.Render(runewidth.Truncate(m.title, max(1, m.width), "…"))
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.statusLine())
}

// Pages returns the displayed pages in message order.
func (m *Model) Pages() []relay.Page {
	out := make([]relay.Page, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.pages[id])
	}
	return out
}

// Finished reports whether the relay reached a terminal state.
func (m *Model) Finished() bool { return m.finished }

func (m *Model) refresh() {
	m.viewport.SetContent(renderPages(m.Pages(), m.width))
}

func (m *Model) statusLine() string {
	count := len(m.ids)
	if !m.finished {
		return fmt.Sprintf("%s streaming · %d page(s) %s", m.spin.View(), count, hintStyle.Render("(esc to cancel)"))
	}
	if m.info.Failure != "" {
		return errorTitleStyle.Render(fmt.Sprintf("✗ %s · %d page(s)", m.info.Failure, count)) + " " + hintStyle.Render("(q to quit)")
	}
	return fmt.Sprintf("✓ %s · %d page(s) · %d rune(s) %s", m.info.State, count, m.info.Runes, hintStyle.Render("(q to quit)"))
}

func renderPages(pages []relay.Page, width int) string {
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		label := fmt.Sprintf("── page %d/%d ", i+1, len(pages))
		if fill := width - runewidth.StringWidth(label); fill > 0 {
			label += strings.Repeat("─", fill)
		}
		b.WriteString(separatorStyle.Render(label))
		b.WriteString("\n")
		b.WriteString(renderPage(page, width))
	}
	return b.String()
}

func renderPage(page relay.Page, width int) string {
	switch page.Kind {
	case relay.PagePlaceholder:
		return placeholderStyle.Render(page.Content)
	case relay.PageError:
		return errorTitleStyle.Render(page.Title) + "\n" + runewidth.Wrap(page.Content, width)
	default:
		return runewidth.Wrap(page.Content, width)
	}
}
