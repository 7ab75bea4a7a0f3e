// Package menu draws modal option lists on top of a tcell screen
package menu

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Item is a single menu row. Value, when set, is shown right aligned and is
// re-evaluated on every draw so that cycling an option updates in place.
type Item struct {
	Label  string
	Value  func() string
	Action func()
}

// Menu is a titled list with one selected row
type Menu struct {
	title    string
	items    []Item
	selected int
	visible  bool

	// Callbacks
	onClose func()
}

var (
	boxStyle      = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	selectedStyle = tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
)

// New creates a hidden menu
func New(title string, items ...Item) *Menu {
	return &Menu{
		title: title,
		items: items,
	}
}

// Show makes the menu visible and selects the first row
func (m *Menu) Show() {
	m.visible = true
	m.selected = 0
}

// Hide hides the menu
func (m *Menu) Hide() {
	if !m.visible {
		return
	}
	m.visible = false
	if m.onClose != nil {
		m.onClose()
	}
}

// IsVisible returns whether the menu is visible
func (m *Menu) IsVisible() bool {
	return m.visible
}

// Selected returns the index of the selected row
func (m *Menu) Selected() int {
	return m.selected
}

// SetOnClose sets the callback for when menu closes
func (m *Menu) SetOnClose(callback func()) {
	m.onClose = callback
}

// HandleKey processes keyboard input. It reports whether the key was
// consumed; a visible menu consumes every key.
func (m *Menu) HandleKey(ev *tcell.EventKey) bool {
	if !m.visible {
		return false
	}

	switch ev.Key() {
	case tcell.KeyEscape:
		m.Hide()
	case tcell.KeyUp:
		m.moveSelection(-1)
	case tcell.KeyDown:
		m.moveSelection(1)
	case tcell.KeyEnter:
		m.activateSelected()
	case tcell.KeyRune:
		if ev.Rune() == ' ' {
			m.activateSelected()
		}
	}

	return true
}

// moveSelection moves the selection up or down, wrapping at either end
func (m *Menu) moveSelection(direction int) {
	if len(m.items) == 0 {
		return
	}
	m.selected = (m.selected + direction + len(m.items)) % len(m.items)
}

// activateSelected runs the action of the selected row. The menu stays open
// so the new value is visible.
func (m *Menu) activateSelected() {
	if m.selected < 0 || m.selected >= len(m.items) {
		return
	}
	if action := m.items[m.selected].Action; action != nil {
		action()
	}
}

// Size returns the width and height of the box including its border
func (m *Menu) Size() (int, int) {
	width := runewidth.StringWidth(m.title) + 4
	for _, item := range m.items {
		w := runewidth.StringWidth(item.Label) + 6
		if item.Value != nil {
			w += runewidth.StringWidth(item.Value()) + 2
		}
		width = max(width, w)
	}

	height := len(m.items) + 2
	if m.title != "" {
		height += 2
	}
	return width, height
}

// Draw renders the menu centered on screen. The caller shows the screen.
func (m *Menu) Draw(screen tcell.Screen) {
	if !m.visible {
		return
	}

	sw, sh := screen.Size()
	width, height := m.Size()
	x0 := max(0, (sw-width)/2)
	y0 := max(0, (sh-height)/2)

	drawBorder(screen, x0, y0, width, height)

	y := y0 + 1
	if m.title != "" {
		titleX := x0 + (width-runewidth.StringWidth(m.title))/2
		drawText(screen, titleX, y, x0+width-1, m.title, boxStyle.Bold(true))
		y++
		for x := x0 + 1; x < x0+width-1; x++ {
			screen.SetContent(x, y, '─', nil, boxStyle)
		}
		y++
	}

	for i, item := range m.items {
		style := boxStyle
		if i == m.selected {
			style = selectedStyle
		}

		for x := x0 + 1; x < x0+width-1; x++ {
			screen.SetContent(x, y, ' ', nil, style)
		}
		drawText(screen, x0+2, y, x0+width-1, item.Label, style)

		if item.Value != nil {
			value := item.Value()
			drawText(screen, x0+width-2-runewidth.StringWidth(value), y, x0+width-1, value, style)
		}
		y++
	}
}

func drawBorder(screen tcell.Screen, x0, y0, width, height int) {
	right, bottom := x0+width-1, y0+height-1

	screen.SetContent(x0, y0, '┌', nil, boxStyle)
	screen.SetContent(right, y0, '┐', nil, boxStyle)
	screen.SetContent(x0, bottom, '└', nil, boxStyle)
	screen.SetContent(right, bottom, '┘', nil, boxStyle)

	for x := x0 + 1; x < right; x++ {
		screen.SetContent(x, y0, '─', nil, boxStyle)
		screen.SetContent(x, bottom, '─', nil, boxStyle)
	}

	for y := y0 + 1; y < bottom; y++ {
		screen.SetContent(x0, y, '│', nil, boxStyle)
		screen.SetContent(right, y, '│', nil, boxStyle)
		for x := x0 + 1; x < right; x++ {
			screen.SetContent(x, y, ' ', nil, boxStyle)
		}
	}
}

// drawText writes text from x, stopping before limit
func drawText(screen tcell.Screen, x, y, limit int, text string, style tcell.Style) {
	for _, ch := range text {
		w := runewidth.RuneWidth(ch)
		if x+w > limit {
			return
		}
		screen.SetContent(x, y, ch, nil, style)
		x += w
	}
}
