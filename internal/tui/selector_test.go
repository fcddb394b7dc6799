package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
)

func testCollection() resource.Collection {
	c := resource.NewCollection()
	c.Add(
		resource.Reference{Type: resource.Scripts, Source: "/app.js", Local: true, File: "/site/index.html"},
		resource.Reference{Type: resource.Scripts, Source: "/app.js", Local: true, File: "/site/about.html"},
		resource.Reference{Type: resource.Scripts, Source: "https://cdn.example.com/lib.js", File: "/site/index.html"},
		resource.Reference{Type: resource.Images, Source: "https://cdn.example.com/logo.png", File: "/site/index.html"},
	)
	return c
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Selector, msgs ...tea.Msg) (Selector, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var updated tea.Model
		updated, cmd = m.Update(msg)
		m = updated.(Selector)
	}
	return m, cmd
}

func TestSelectorPreselection(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowFrom(c, policy.SelectLocal))

	allow := m.AllowList()
	if !allow.Contains(resource.Scripts, "/app.js") {
		t.Error("expected local script to be preselected")
	}
	if allow.Contains(resource.Images, "https://cdn.example.com/logo.png") {
		t.Error("expected external image to start unchecked")
	}
	for _, typ := range resource.AllTypes() {
		if !allow.Reviewed(typ) {
			t.Errorf("expected %s to be reviewed", typ)
		}
	}
}

func TestSelectorToggleSharesDuplicateSources(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowList{})

	// Row 1 is the second /app.js occurrence.
	m, _ = send(t, m, runes("j"), tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if !m.AllowList().Contains(resource.Scripts, "/app.js") {
		t.Fatal("expected /app.js to be checked")
	}
	if got := m.selectedCount(); got != 2 {
		t.Errorf("expected both occurrences to be checked, got %d", got)
	}

	m, _ = send(t, m, runes("k"), runes("x"))
	if m.AllowList().Contains(resource.Scripts, "/app.js") {
		t.Error("expected toggling the other occurrence to clear the source")
	}
}

func TestSelectorBulkSelections(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowList{})

	m, _ = send(t, m, runes("E"))
	allow := m.AllowList()
	if allow.Contains(resource.Scripts, "/app.js") || !allow.Contains(resource.Images, "https://cdn.example.com/logo.png") {
		t.Errorf("unexpected external selection: %v", allow.ToMap())
	}

	m, _ = send(t, m, runes("a"))
	if m.selectedCount() != 4 {
		t.Errorf("expected all rows checked, got %d", m.selectedCount())
	}

	m, _ = send(t, m, runes("n"))
	if m.selectedCount() != 0 {
		t.Errorf("expected no rows checked, got %d", m.selectedCount())
	}

	m, _ = send(t, m, runes("L"))
	if !m.AllowList().Contains(resource.Scripts, "/app.js") || m.selectedCount() != 2 {
		t.Errorf("expected only local rows checked, got %v", m.AllowList().ToMap())
	}
}

func TestSelectorCheckOnlyWithinType(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowFrom(c, policy.SelectAll))

	// Cursor starts on the scripts group.
	m, _ = send(t, m, runes("l"))
	allow := m.AllowList()
	if !allow.Contains(resource.Scripts, "/app.js") || allow.Contains(resource.Scripts, "https://cdn.example.com/lib.js") {
		t.Fatalf("expected only local scripts checked, got %v", allow.ToMap())
	}
	if !allow.Contains(resource.Images, "https://cdn.example.com/logo.png") {
		t.Fatal("expected images to keep their selection")
	}

	m, _ = send(t, m, runes("e"))
	allow = m.AllowList()
	if allow.Contains(resource.Scripts, "/app.js") || !allow.Contains(resource.Scripts, "https://cdn.example.com/lib.js") {
		t.Fatalf("expected only external scripts checked, got %v", allow.ToMap())
	}

	// The last row is the external image; it has no local sources.
	m, _ = send(t, m, runes("G"), runes("l"))
	allow = m.AllowList()
	if allow.Contains(resource.Images, "https://cdn.example.com/logo.png") {
		t.Error("expected the external image to be cleared")
	}
	if !allow.Contains(resource.Scripts, "https://cdn.example.com/lib.js") {
		t.Error("expected scripts to keep their selection")
	}
}

func TestSelectorToggleType(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowList{})

	m, _ = send(t, m, runes("t"))
	allow := m.AllowList()
	if len(allow.Sources(resource.Scripts)) != 2 || len(allow.Sources(resource.Images)) != 0 {
		t.Fatalf("expected all scripts checked, got %v", allow.ToMap())
	}

	m, _ = send(t, m, runes("t"))
	if len(m.AllowList().Sources(resource.Scripts)) != 0 {
		t.Error("expected second toggle to clear scripts")
	}
}

func TestSelectorConfirmAndCancel(t *testing.T) {
	c := testCollection()

	m, cmd := send(t, NewSelector(nil, c, policy.AllowList{}), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.Confirmed() || cmd == nil {
		t.Error("expected enter to confirm and quit")
	}

	m, cmd = send(t, NewSelector(nil, c, policy.AllowList{}), runes("q"))
	if m.Confirmed() || cmd == nil {
		t.Error("expected q to cancel and quit")
	}

	m, _ = send(t, NewSelector(nil, c, policy.AllowList{}), tea.KeyMsg{Type: tea.KeyCtrlC})
	if m.Confirmed() {
		t.Error("expected ctrl+c to cancel")
	}
}

func TestSelectorSearchNarrowsRows(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowList{})

	m, _ = send(t, m, runes("/"), runes("l"), runes("o"), runes("g"), tea.KeyMsg{Type: tea.KeyEnter})
	if m.searching {
		t.Fatal("expected enter to leave search mode")
	}
	if m.search != "log" {
		t.Fatalf("expected search term log, got %q", m.search)
	}
	if got := len(m.visibleRows()); got != 1 {
		t.Fatalf("expected 1 visible row, got %d", got)
	}

	m, _ = send(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	if !m.AllowList().Contains(resource.Images, "https://cdn.example.com/logo.png") {
		t.Error("expected toggle to act on the filtered row")
	}
	if m.Confirmed() {
		t.Error("search keys must not confirm the selector")
	}
}

func TestSelectorView(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowFrom(c, policy.SelectLocal))

	view := m.View()
	for _, want := range []string{"scripts", "script-src", "images", "img-src", "[x]", "[ ]", "/app.js", "enter"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestSelectorWindowResizeKeepsCursorVisible(t *testing.T) {
	c := testCollection()
	m := NewSelector(nil, c, policy.AllowList{})

	m, _ = send(t, m, tea.WindowSizeMsg{Width: 80, Height: 10}, runes("G"))
	if m.cursor != 3 {
		t.Fatalf("expected cursor on last row, got %d", m.cursor)
	}
	if m.cursor < m.offset || m.cursor >= m.offset+m.height {
		t.Errorf("cursor %d outside window [%d,%d)", m.cursor, m.offset, m.offset+m.height)
	}
}
