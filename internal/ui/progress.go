package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"tlsify/internal/pool"
)

type progressModel struct {
	title   string
	events  <-chan pool.Event
	spinner spinner.Model
	prog    progress.Model
	items   []shardItem
	width   int
	done    bool
}

type shardItem struct {
	label   string
	files   int
	status  pool.Status
	records int
	elapsed time.Duration
	err     error
}

type eventMsg pool.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders shard progress.
// shardFiles holds the file count of every shard, in shard order.
func NewProgressModel(title string, shardFiles []int, events <-chan pool.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]shardItem, 0, len(shardFiles))
	for i, n := range shardFiles {
		items = append(items, shardItem{
			label:  fmt.Sprintf("shard %d (%d files)", i, n),
			files:  n,
			status: pool.StatusQueued,
		})
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(pool.Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := m.width - statusWidth - 4
	if nameWidth < 20 {
		nameWidth = 20
	}

	for _, item := range m.items {
		statusStyled := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		b.WriteString(fmt.Sprintf("  %s %s", statusStyled, truncate(describe(item), nameWidth)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.footer())
	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

// footer summarises finished shards: "3/8 shards, 120 proposal(s), 1 failed".
func (m *progressModel) footer() string {
	finished, failed, records := 0, 0, 0
	for _, item := range m.items {
		switch item.status {
		case pool.StatusDone:
			finished++
			records += item.records
		case pool.StatusError:
			finished++
			failed++
		}
	}
	line := fmt.Sprintf("  %d/%d shards, %d proposal(s)", finished, len(m.items), records)
	if failed > 0 {
		line += styleStatus(pool.StatusError).Render(fmt.Sprintf(", %d failed", failed))
	}
	return line
}

func describe(item shardItem) string {
	switch item.status {
	case pool.StatusDone:
		return fmt.Sprintf("%s: %d proposal(s) in %s", item.label, item.records, item.elapsed.Round(time.Millisecond))
	case pool.StatusError:
		if item.err != nil {
			// первая строка: хвост stderr идёт после неё
			msg, _, _ := strings.Cut(item.err.Error(), "\n")
			return fmt.Sprintf("%s: %s", item.label, msg)
		}
	}
	return item.label
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev pool.Event) tea.Cmd {
	if ev.Shard < 0 || ev.Shard >= len(m.items) {
		return nil
	}
	item := &m.items[ev.Shard]
	item.status = ev.Status
	item.records = ev.Records
	item.elapsed = ev.Elapsed
	item.err = ev.Err
	return m.prog.SetPercent(m.percent())
}

// percent weighs shards by file count. A running shard counts as a third
// done: workers report nothing between start and finish.
func (m *progressModel) percent() float64 {
	total, done := 0.0, 0.0
	for _, item := range m.items {
		w := float64(item.files)
		total += w
		switch item.status {
		case pool.StatusDone, pool.StatusError:
			done += w
		case pool.StatusAnalyzing:
			done += w / 3
		}
	}
	if total == 0 {
		return 0
	}
	return done / total
}

func styleStatus(status pool.Status) lipgloss.Style {
	switch status {
	case pool.StatusDone:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case pool.StatusError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case pool.StatusAnalyzing:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
