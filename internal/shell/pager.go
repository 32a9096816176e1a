package shell

import (
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// defaultPageHeight is used until the terminal reports its size.
const defaultPageHeight = 20

// Pager shows a titled list of lines to the user.
type Pager interface {
	Page(title string, lines []string) error
}

// PlainPager writes every line straight to Out.
type PlainPager struct {
	Out io.Writer
}

// Page implements Pager.
func (p PlainPager) Page(title string, lines []string) error {
	if _, err := fmt.Fprintf(p.Out, "== %s ==\n", title); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(p.Out, line); err != nil {
			return err
		}
	}
	return nil
}

// TerminalPager pages through lines with a full screen bubbletea program.
type TerminalPager struct {
	In     io.Reader
	Out    io.Writer
	Styles Styles
}

// Page implements Pager. It returns when the user quits or pages past the
// last screen.
func (p TerminalPager) Page(title string, lines []string) error {
	m := newPagerModel(title, lines, p.Styles)
	prog := tea.NewProgram(m,
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
		tea.WithAltScreen(),
	)
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("pager: %w", err)
	}
	return nil
}

// isTerminal reports whether w and r are both attached to a terminal.
func isTerminal(r io.Reader, w io.Writer) bool {
	in, ok := r.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false
	}
	out, ok := w.(*os.File)
	return ok && term.IsTerminal(int(out.Fd()))
}

// pagerModel is the bubbletea model behind TerminalPager. Paging backwards
// moves the offset rather than rereading the source.
type pagerModel struct {
	title  string
	lines  []string
	styles Styles
	offset int
	height int
	width  int
}

func newPagerModel(title string, lines []string, styles Styles) pagerModel {
	return pagerModel{
		title:  title,
		lines:  lines,
		styles: styles,
		height: defaultPageHeight,
	}
}

func (m pagerModel) Init() tea.Cmd {
	return nil
}

func (m pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// One row for the header and one for the footer.
		m.height = max(1, msg.Height-2)
		m.offset = min(m.offset, m.lastOffset())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeySpace {
			return m.forward()
		}
		switch msg.String() {
		case "q", "Q", "esc", "ctrl+c":
			return m, tea.Quit
		case " ", "s", "S", "pgdown", "f":
			return m.forward()
		case "b", "B", "pgup":
			m.offset = max(0, m.offset-m.height)
		}
	}
	return m, nil
}

// forward moves to the next page, or quits from the last one.
func (m pagerModel) forward() (tea.Model, tea.Cmd) {
	if m.offset+m.height >= len(m.lines) {
		return m, tea.Quit
	}
	m.offset += m.height
	return m, nil
}

func (m pagerModel) View() string {
	var b strings.Builder
	header := fmt.Sprintf("%s - page %d/%d", m.title, m.page(), m.pages())
	b.WriteString(m.styles.Header.Render(header))
	b.WriteString("\n")

	if len(m.lines) == 0 {
		b.WriteString(m.styles.Muted.Render("(empty)"))
		b.WriteString("\n")
	}
	end := min(m.offset+m.height, len(m.lines))
	for _, line := range m.lines[m.offset:end] {
		b.WriteString(clip(line, m.width))
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Muted.Render("q quit, space/s next, b back"))
	return b.String()
}

// page is the 1-based page the offset falls on.
func (m pagerModel) page() int {
	return m.offset/m.height + 1
}

func (m pagerModel) pages() int {
	if len(m.lines) == 0 {
		return 1
	}
	return (len(m.lines) + m.height - 1) / m.height
}

// lastOffset is the offset of the final page.
func (m pagerModel) lastOffset() int {
	return (m.pages() - 1) * m.height
}

// clip cuts s to width runes. A width of zero means unknown and leaves s
// alone.
func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}
