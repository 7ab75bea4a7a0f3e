// Package ui provides the interactive terminal front end of the console
package ui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"serial-console/pkg/console"
	"serial-console/pkg/menu"
)

// Options configures a View
type Options struct {
	// Title is shown at the left of the status bar, usually the port summary
	Title string
	// State reports the connection state shown in the status bar
	State func() string
}

var (
	defaultStyle = tcell.StyleDefault.
			Background(tcell.ColorReset).
			Foreground(tcell.ColorReset)
	statusStyle = tcell.StyleDefault.Reverse(true)
	promptStyle = defaultStyle.Bold(true)
)

const prompt = "> "

// View draws the scrollback, a status bar and an input line, and turns key
// presses into console operations. All methods except the console event
// handler run on the goroutine calling Run.
type View struct {
	screen tcell.Screen
	ctrl   *console.Controller
	opts   Options

	keys     Keymap
	settings *menu.Menu
	help     *menu.Menu

	input   []rune
	top     int
	follow  bool
	message string
	quit    bool

	// pending coalesces redraw requests posted from other goroutines
	pending atomic.Bool
}

// New creates a view over an initialized screen
func New(screen tcell.Screen, ctrl *console.Controller, opts Options) *View {
	v := &View{
		screen: screen,
		ctrl:   ctrl,
		opts:   opts,
		follow: true,
	}

	v.setupKeys()
	v.setupMenus()

	return v
}

// setupKeys sets up the console shortcuts
func (v *View) setupKeys() {
	v.keys.Bind(Binding{Name: "help", Key: tcell.KeyF1, Description: "Show key bindings", Handler: v.showHelp})
	v.keys.Bind(Binding{Name: "display", Key: tcell.KeyF2, Description: "Cycle display mode", Handler: v.cycleDisplayMode})
	v.keys.Bind(Binding{Name: "data", Key: tcell.KeyF3, Description: "Cycle data mode", Handler: v.cycleDataMode})
	v.keys.Bind(Binding{Name: "ending", Key: tcell.KeyF4, Description: "Cycle line ending", Handler: v.cycleLineEnding})
	v.keys.Bind(Binding{Name: "echo", Key: tcell.KeyF5, Description: "Toggle echo", Handler: func() { v.ctrl.SetEcho(!v.ctrl.Echo()) }})
	v.keys.Bind(Binding{Name: "timestamp", Key: tcell.KeyF6, Description: "Toggle timestamps", Handler: func() { v.ctrl.SetShowTimestamp(!v.ctrl.ShowTimestamp()) }})
	v.keys.Bind(Binding{Name: "autoscroll", Key: tcell.KeyF7, Description: "Toggle autoscroll", Handler: func() { v.ctrl.SetAutoscroll(!v.ctrl.Autoscroll()) }})
	v.keys.Bind(Binding{Name: "settings", Key: tcell.KeyF9, Description: "Settings menu", Handler: v.showSettings})
	v.keys.Bind(Binding{Name: "clear", Key: tcell.KeyCtrlL, Description: "Clear console", Handler: v.clear})
	v.keys.Bind(Binding{Name: "save", Key: tcell.KeyCtrlS, Description: "Save console to file", Handler: v.save})
	v.keys.Bind(Binding{Name: "exit", Key: tcell.KeyCtrlQ, Description: "Exit", Handler: func() { v.quit = true }})
}

func (v *View) setupMenus() {
	onOff := func(get func() bool) func() string {
		return func() string {
			if get() {
				return "on"
			}
			return "off"
		}
	}

	v.settings = menu.New("Settings",
		menu.Item{Label: "Data mode", Value: func() string { return label(console.DataModes(), int(v.ctrl.DataMode())) }, Action: v.cycleDataMode},
		menu.Item{Label: "Line ending", Value: func() string { return label(console.LineEndings(), int(v.ctrl.LineEnding())) }, Action: v.cycleLineEnding},
		menu.Item{Label: "Display", Value: func() string { return label(console.DisplayModes(), int(v.ctrl.DisplayMode())) }, Action: v.cycleDisplayMode},
		menu.Item{Label: "Echo", Value: onOff(v.ctrl.Echo), Action: func() { v.ctrl.SetEcho(!v.ctrl.Echo()) }},
		menu.Item{Label: "Timestamps", Value: onOff(v.ctrl.ShowTimestamp), Action: func() { v.ctrl.SetShowTimestamp(!v.ctrl.ShowTimestamp()) }},
		menu.Item{Label: "Autoscroll", Value: onOff(v.ctrl.Autoscroll), Action: func() { v.ctrl.SetAutoscroll(!v.ctrl.Autoscroll()) }},
		menu.Item{Label: "Clear console", Action: v.clear},
		menu.Item{Label: "Save console", Action: v.save},
	)

	var items []menu.Item
	for _, b := range v.keys.Bindings() {
		items = append(items, menu.Item{Label: b.Description, Value: func() string { return b.KeyName() }})
	}
	v.help = menu.New("Keys", items...)
}

// Keys returns the key bindings of the view
func (v *View) Keys() *Keymap {
	return &v.keys
}

// Run processes screen events until the user exits or ctx is cancelled.
// The caller owns the screen and finalizes it afterwards.
func (v *View) Run(ctx context.Context) error {
	unsubscribe := v.ctrl.Subscribe(v.onConsoleEvent)
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			v.screen.PostEvent(tcell.NewEventInterrupt(nil))
		case <-done:
		}
	}()

	v.Draw()
	for !v.quit {
		if ctx.Err() != nil {
			return nil
		}

		ev := v.screen.PollEvent()
		if ev == nil {
			return nil
		}

		v.HandleEvent(ev)
		v.Draw()
	}

	return nil
}

// Quit reports whether the user asked to exit
func (v *View) Quit() bool {
	return v.quit
}

// onConsoleEvent runs on the goroutine that changed the console. It only
// posts to the screen queue.
func (v *View) onConsoleEvent(ev console.Event) {
	if ev.Kind == console.EventError {
		v.screen.PostEvent(tcell.NewEventInterrupt(ev))
		return
	}

	if v.pending.CompareAndSwap(false, true) {
		if err := v.screen.PostEvent(tcell.NewEventInterrupt(nil)); err != nil {
			v.pending.Store(false)
		}
	}
}

// HandleEvent applies a single screen event
func (v *View) HandleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
	case *tcell.EventKey:
		v.handleKey(ev)
	case *tcell.EventInterrupt:
		if ce, ok := ev.Data().(console.Event); ok && ce.Err != nil {
			v.message = ce.Err.Error()
			return
		}
		v.pending.Store(false)
	}
}

func (v *View) handleKey(ev *tcell.EventKey) {
	if v.help.HandleKey(ev) || v.settings.HandleKey(ev) {
		return
	}

	if v.keys.Dispatch(ev) {
		return
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		v.submit()
	case tcell.KeyUp:
		v.input = []rune(v.ctrl.HistoryPrevious())
	case tcell.KeyDown:
		v.input = []rune(v.ctrl.HistoryNext())
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(v.input) > 0 {
			v.input = v.input[:len(v.input)-1]
		}
	case tcell.KeyCtrlU:
		v.input = v.input[:0]
	case tcell.KeyPgUp:
		v.scroll(-v.pageSize())
	case tcell.KeyPgDn:
		v.scroll(v.pageSize())
	case tcell.KeyHome:
		v.follow = false
		v.top = 0
	case tcell.KeyEnd:
		v.follow = true
		v.top = v.bottom()
	case tcell.KeyRune:
		v.input = append(v.input, ev.Rune())
	}
}

// submit sends the input line
func (v *View) submit() {
	text := string(v.input)
	if text == "" {
		return
	}

	v.input = v.input[:0]
	if err := v.ctrl.Send(text); err != nil {
		v.message = err.Error()
		return
	}
	v.message = ""
}

func (v *View) clear() {
	v.ctrl.Clear()
	v.top = 0
	v.follow = true
	v.message = "console cleared"
}

func (v *View) save() {
	path, err := v.ctrl.Save()
	switch {
	case err != nil:
		v.message = fmt.Sprintf("save failed: %v", err)
	case path == "":
		v.message = "nothing to save"
	default:
		v.message = "saved to " + path
	}
}

func (v *View) showHelp() {
	v.settings.Hide()
	v.help.Show()
}

func (v *View) showSettings() {
	v.help.Hide()
	v.settings.Show()
}

func (v *View) cycleDisplayMode() {
	n := len(console.DisplayModes())
	v.ctrl.SetDisplayMode(console.DisplayMode((int(v.ctrl.DisplayMode()) + 1) % n))
}

func (v *View) cycleDataMode() {
	n := len(console.DataModes())
	v.ctrl.SetDataMode(console.DataMode((int(v.ctrl.DataMode()) + 1) % n))
}

func (v *View) cycleLineEnding() {
	n := len(console.LineEndings())
	v.ctrl.SetLineEnding(console.LineEnding((int(v.ctrl.LineEnding()) + 1) % n))
}

// pageSize is the number of scrollback rows on screen
func (v *View) pageSize() int {
	_, h := v.screen.Size()
	return max(1, h-2)
}

// bottom is the first line index that shows the newest page
func (v *View) bottom() int {
	return max(0, v.ctrl.LineCount()-v.pageSize())
}

func (v *View) scroll(delta int) {
	v.top = min(max(0, v.top+delta), v.bottom())
	v.follow = v.top == v.bottom()
}

// Top returns the index of the first visible scrollback line
func (v *View) Top() int {
	return v.top
}

// Input returns the pending input line
func (v *View) Input() string {
	return string(v.input)
}

// Message returns the text shown at the right of the status bar
func (v *View) Message() string {
	return v.message
}

// Draw repaints the whole screen
func (v *View) Draw() {
	w, h := v.screen.Size()
	v.screen.Clear()
	if w <= 0 || h <= 0 {
		return
	}

	rows := v.pageSize()
	if v.follow && v.ctrl.Autoscroll() {
		v.top = v.bottom()
	}
	v.top = min(v.top, v.bottom())

	for i, line := range v.ctrl.Window(v.top, rows) {
		drawText(v.screen, 0, i, w, line, defaultStyle)
	}

	if h >= 2 {
		fill(v.screen, h-2, w, statusStyle)
		drawText(v.screen, 0, h-2, w, v.statusLine(), statusStyle)
	}

	v.drawInput(w, h-1)

	v.settings.Draw(v.screen)
	v.help.Draw(v.screen)
	v.screen.Show()
}

// statusLine summarizes the connection and console settings
func (v *View) statusLine() string {
	s := v.ctrl.Settings()

	parts := []string{}
	if v.opts.Title != "" {
		parts = append(parts, v.opts.Title)
	}
	if v.opts.State != nil {
		parts = append(parts, v.opts.State())
	}

	parts = append(parts,
		label(console.DataModes(), int(s.DataMode)),
		label(console.LineEndings(), int(s.LineEnding)),
		label(console.DisplayModes(), int(s.DisplayMode)),
		flag("echo", s.Echo),
		flag("ts", s.ShowTimestamp),
		flag("scroll", s.Autoscroll),
		fmt.Sprintf("%d lines", v.ctrl.LineCount()),
	)
	if v.message != "" {
		parts = append(parts, v.message)
	}

	return " " + strings.Join(parts, " | ")
}

// drawInput draws the prompt and the tail of the input that fits
func (v *View) drawInput(w, y int) {
	drawText(v.screen, 0, y, w, prompt, promptStyle)

	x := runewidth.StringWidth(prompt)
	room := w - x - 1
	input := v.input
	for runewidth.StringWidth(string(input)) > room && len(input) > 0 {
		input = input[1:]
	}

	end := drawText(v.screen, x, y, w, string(input), defaultStyle)
	v.screen.ShowCursor(end, y)
}

// drawText writes text from x, clipping at width. Control characters are
// shown as spaces. It returns the column after the last cell written.
func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) int {
	for _, ch := range text {
		if ch < ' ' || ch == 0x7f {
			ch = ' '
		}

		cw := runewidth.RuneWidth(ch)
		if cw == 0 {
			continue
		}
		if x+cw > width {
			break
		}

		screen.SetContent(x, y, ch, nil, style)
		x += cw
	}
	return x
}

func fill(screen tcell.Screen, y, width int, style tcell.Style) {
	for x := 0; x < width; x++ {
		screen.SetContent(x, y, ' ', nil, style)
	}
}

func label(labels []string, i int) string {
	if i >= 0 && i < len(labels) {
		return labels[i]
	}
	return "?"
}

func flag(name string, on bool) string {
	if on {
		return name + " on"
	}
	return name + " off"
}
