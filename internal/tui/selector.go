package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
)

// selectionKey identifies an approvable source. Every occurrence of the same
// source within a type shares one checkbox.
type selectionKey struct {
	typ resource.Type
	src string
}

type row struct {
	ref resource.Reference
	key selectionKey
}

// Selector is a checkbox list over a scan result. Rows are grouped by type in
// canonical order and keep the collection's order inside each group.
type Selector struct {
	styles    *StyleSet
	rows      []row
	selected  map[selectionKey]bool
	cursor    int
	offset    int
	height    int
	width     int
	searching bool
	search    string
	done      bool
	cancelled bool
}

// NewSelector creates a selector over c with the sources in preselect checked.
func NewSelector(styles *StyleSet, c resource.Collection, preselect policy.AllowList) Selector {
	if styles == nil {
		styles = NewStyleSet(DefaultTheme())
	}
	m := Selector{
		styles:   styles,
		selected: make(map[selectionKey]bool),
		height:   20,
		width:    80,
	}
	for _, t := range resource.AllTypes() {
		for _, ref := range c.Refs(t) {
			key := selectionKey{typ: t, src: ref.Source}
			m.rows = append(m.rows, row{ref: ref, key: key})
			if preselect.Contains(t, ref.Source) {
				m.selected[key] = true
			}
		}
	}
	return m
}

// Init implements tea.Model.
func (m Selector) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Selector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		// Leave room for the title, help line and group headers.
		m.height = max(msg.Height-8, 3)
		m.clampOffset()
		return m, nil
	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Selector) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	visible := m.visibleRows()

	switch msg.String() {
	case "ctrl+c", "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(visible)-1 {
			m.cursor++
		}
	case "pgup":
		m.cursor = max(m.cursor-m.height, 0)
	case "pgdown":
		m.cursor = max(min(m.cursor+m.height, len(visible)-1), 0)
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(visible)-1, 0)
	case " ", "x":
		if len(visible) > 0 {
			key := m.rows[visible[m.cursor]].key
			m.selected[key] = !m.selected[key]
		}
	case "t":
		m.toggleType(visible)
	case "a":
		m.selectWhere(func(resource.Reference) bool { return true })
	case "l":
		m.checkOnly(visible, true)
	case "e":
		m.checkOnly(visible, false)
	case "L":
		m.selectWhere(func(ref resource.Reference) bool { return ref.Local })
	case "E":
		m.selectWhere(func(ref resource.Reference) bool { return !ref.Local })
	case "n":
		m.selected = make(map[selectionKey]bool)
	case "/":
		m.searching = true
	}
	m.clampOffset()
	return m, nil
}

func (m Selector) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.cancelled = true
		return m, tea.Quit
	case tea.KeyEnter:
		m.searching = false
	case tea.KeyEsc:
		m.searching = false
		m.search = ""
	case tea.KeyBackspace:
		if len(m.search) > 0 {
			r := []rune(m.search)
			m.search = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.search += string(msg.Runes)
	}
	m.cursor = 0
	m.offset = 0
	return m, nil
}

// toggleType checks every source of the type under the cursor, or clears them
// all when every one is already checked.
func (m *Selector) toggleType(visible []int) {
	if len(visible) == 0 {
		return
	}
	typ := m.rows[visible[m.cursor]].key.typ
	all := true
	for _, r := range m.rows {
		if r.key.typ == typ && !m.selected[r.key] {
			all = false
			break
		}
	}
	for _, r := range m.rows {
		if r.key.typ == typ {
			m.selected[r.key] = !all
		}
	}
}

// checkOnly leaves exactly the local (or external) sources of the type under
// the cursor checked. Other types keep their state.
func (m *Selector) checkOnly(visible []int, local bool) {
	if len(visible) == 0 {
		return
	}
	typ := m.rows[visible[m.cursor]].key.typ
	for _, r := range m.rows {
		if r.key.typ == typ {
			m.selected[r.key] = r.ref.Local == local
		}
	}
}

func (m *Selector) selectWhere(match func(resource.Reference) bool) {
	m.selected = make(map[selectionKey]bool)
	for _, r := range m.rows {
		if match(r.ref) {
			m.selected[r.key] = true
		}
	}
}

func (m Selector) visibleRows() []int {
	needle := strings.ToLower(m.search)
	out := make([]int, 0, len(m.rows))
	for i, r := range m.rows {
		if needle == "" ||
			strings.Contains(strings.ToLower(r.ref.Source), needle) ||
			strings.Contains(strings.ToLower(r.ref.File), needle) {
			out = append(out, i)
		}
	}
	return out
}

func (m *Selector) clampOffset() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

// View implements tea.Model.
func (m Selector) View() string {
	if m.done || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("Select approved sources (%d/%d)", m.selectedCount(), len(m.rows))))
	b.WriteString("\n")
	if m.searching || m.search != "" {
		b.WriteString(m.styles.DimTxt.Render("search: ") + m.search)
		if m.searching {
			b.WriteString(m.styles.Cursor.Render("█"))
		}
		b.WriteString("\n")
	}

	visible := m.visibleRows()
	if len(visible) == 0 {
		b.WriteString(m.styles.DimTxt.Render("\n  no resources match\n"))
	}

	end := min(m.offset+m.height, len(visible))
	var lastType resource.Type
	for pos := m.offset; pos < end; pos++ {
		r := m.rows[visible[pos]]
		if pos == m.offset || r.key.typ != lastType {
			b.WriteString(m.styles.Header.Render(r.key.typ.String()+" → "+r.key.typ.Directive()) + "\n")
			lastType = r.key.typ
		}
		b.WriteString(m.renderRow(r, pos == m.cursor) + "\n")
	}

	b.WriteString("\n" + m.helpLine())
	return b.String()
}

func (m Selector) renderRow(r row, active bool) string {
	cursor := "  "
	if active {
		cursor = m.styles.Cursor.Render("> ")
	}
	box := "[ ]"
	if m.selected[r.key] {
		box = "[x]"
	}
	dot := m.styles.ExtDot.Render("●")
	if r.ref.Local {
		dot = m.styles.LocalDot.Render("●")
	}

	src := r.ref.Source
	if src == "" {
		src = `""`
	}
	text := m.styles.Item
	if active {
		text = m.styles.ActiveRow
	}
	return fmt.Sprintf("%s%s %s %s %s", cursor, box, dot, text.Render(src), m.styles.DimTxt.Render(r.ref.File))
}

func (m Selector) helpLine() string {
	keys := []struct{ key, desc string }{
		{"space", "toggle"},
		{"t", "type"},
		{"l/e", "type local/external"},
		{"L/E", "all local/external"},
		{"a", "all"},
		{"n", "none"},
		{"/", "search"},
		{"enter", "confirm"},
		{"q", "cancel"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, m.styles.KbdKey.Render(k.key)+" "+m.styles.KbdDesc.Render(k.desc))
	}
	return strings.Join(parts, "  ")
}

func (m Selector) selectedCount() int {
	n := 0
	for _, r := range m.rows {
		if m.selected[r.key] {
			n++
		}
	}
	return n
}

// Confirmed reports whether the operator accepted the selection.
func (m Selector) Confirmed() bool { return m.done && !m.cancelled }

// AllowList returns the checked sources. Every type is marked reviewed.
func (m Selector) AllowList() policy.AllowList {
	allow := make(policy.AllowList)
	for _, t := range resource.AllTypes() {
		allow.Allow(t)
	}
	for key, on := range m.selected {
		if on {
			allow.Allow(key.typ, key.src)
		}
	}
	return allow
}

// Run shows the selector and blocks until it is confirmed or cancelled. The
// returned bool is false when the operator cancelled.
func Run(ctx context.Context, styles *StyleSet, c resource.Collection, preselect policy.AllowList, opts ...tea.ProgramOption) (policy.AllowList, bool, error) {
	model := NewSelector(styles, c, preselect)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)

	final, err := tea.NewProgram(model, opts...).Run()
	if err != nil {
		return nil, false, fmt.Errorf("selector error: %w", err)
	}

	sel, ok := final.(Selector)
	if !ok {
		return nil, false, fmt.Errorf("unexpected model type from selector")
	}
	if !sel.Confirmed() {
		return nil, false, nil
	}
	return sel.AllowList(), true, nil
}
