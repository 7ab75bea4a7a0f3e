package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"serial-console/pkg/console"
)

type fakeDevice struct {
	mu      sync.Mutex
	written []string
}

func (d *fakeDevice) Connected() bool { return true }

func (d *fakeDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.written = append(d.written, string(data))
	return len(data), nil
}

func (d *fakeDevice) Written() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.written...)
}

type fixture struct {
	screen tcell.SimulationScreen
	device *fakeDevice
	ctrl   *console.Controller
	view   *View
}

func newFixture(t *testing.T, w, h int) *fixture {
	t.Helper()

	screen := tcell.NewSimulationScreen("")
	if err := screen.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(w, h)

	opts := console.DefaultOptions()
	opts.Settings.ShowTimestamp = false
	opts.ExportPath = console.FixedPath(filepath.Join(t.TempDir(), "console.txt"))

	device := &fakeDevice{}
	ctrl := console.NewController(device, opts)

	return &fixture{
		screen: screen,
		device: device,
		ctrl:   ctrl,
		view:   New(screen, ctrl, Options{Title: "COM1 115200 8N1", State: func() string { return "connected" }}),
	}
}

func (f *fixture) receive(text string) {
	f.ctrl.OnBytesReceived([]byte(text))
	f.ctrl.Flush()
}

func (f *fixture) key(k tcell.Key) {
	f.view.HandleEvent(tcell.NewEventKey(k, 0, tcell.ModNone))
}

func (f *fixture) typeText(text string) {
	for _, r := range text {
		f.view.HandleEvent(tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone))
	}
}

// row returns the text of screen row y with trailing blanks removed
func (f *fixture) row(y int) string {
	f.view.Draw()
	cells, w, _ := f.screen.GetContents()

	var b strings.Builder
	for x := 0; x < w; x++ {
		runes := cells[y*w+x].Runes
		if len(runes) == 0 {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(runes[0])
		if runewidth.RuneWidth(runes[0]) == 2 {
			x++
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func TestView_DrawsScrollbackAndStatus(t *testing.T) {
	f := newFixture(t, 120, 6)
	f.receive("hello\nworld")

	if got := f.row(0); got != "hello" {
		t.Errorf("row 0 = %q, want %q", got, "hello")
	}
	if got := f.row(1); got != "world" {
		t.Errorf("row 1 = %q, want %q", got, "world")
	}

	status := f.row(4)
	for _, want := range []string{"COM1 115200 8N1", "connected", "ASCII", "No line ending", "Plain text", "echo off"} {
		if !strings.Contains(status, want) {
			t.Errorf("status %q missing %q", status, want)
		}
	}

	if got := f.row(5); got != prompt[:1] {
		t.Errorf("input row = %q, want bare prompt", got)
	}
}

func TestView_SubmitSendsInput(t *testing.T) {
	f := newFixture(t, 40, 6)
	f.ctrl.SetLineEnding(console.LineEndingCRLF)

	f.typeText("ATZ")
	if got := f.row(5); got != "> ATZ" {
		t.Errorf("input row = %q, want %q", got, "> ATZ")
	}

	f.key(tcell.KeyEnter)

	if got := f.device.Written(); len(got) != 1 || got[0] != "ATZ\r\n" {
		t.Errorf("written = %q, want [\"ATZ\\r\\n\"]", got)
	}
	if f.view.Input() != "" {
		t.Errorf("Input() = %q after Enter, want empty", f.view.Input())
	}

	f.key(tcell.KeyEnter)
	if got := len(f.device.Written()); got != 1 {
		t.Errorf("empty input was sent, %d writes", got)
	}
}

func TestView_EditingKeys(t *testing.T) {
	f := newFixture(t, 40, 6)

	f.typeText("abc")
	f.key(tcell.KeyBackspace2)
	if got := f.view.Input(); got != "ab" {
		t.Errorf("Input() after backspace = %q, want %q", got, "ab")
	}

	f.view.HandleEvent(tcell.NewEventKey(tcell.KeyCtrlU, 0, tcell.ModCtrl))
	if got := f.view.Input(); got != "" {
		t.Errorf("Input() after Ctrl-U = %q, want empty", got)
	}
}

func TestView_HistoryRecall(t *testing.T) {
	f := newFixture(t, 40, 6)

	for _, cmd := range []string{"one", "two"} {
		f.typeText(cmd)
		f.key(tcell.KeyEnter)
	}

	tests := []struct {
		key  tcell.Key
		want string
	}{
		{tcell.KeyUp, "two"},
		{tcell.KeyUp, "one"},
		{tcell.KeyUp, "one"},
		{tcell.KeyDown, "two"},
		{tcell.KeyDown, "two"},
	}

	for i, tt := range tests {
		f.key(tt.key)
		if got := f.view.Input(); got != tt.want {
			t.Errorf("step %d: Input() = %q, want %q", i, got, tt.want)
		}
	}
}

func TestView_FunctionKeys(t *testing.T) {
	f := newFixture(t, 80, 6)

	f.key(tcell.KeyF2)
	f.key(tcell.KeyF3)
	f.key(tcell.KeyF4)
	f.key(tcell.KeyF5)
	f.key(tcell.KeyF6)
	f.key(tcell.KeyF7)

	got := f.ctrl.Settings()
	want := console.Settings{
		DataMode:      console.DataHex,
		LineEnding:    console.LineEndingLF,
		DisplayMode:   console.DisplayHexadecimal,
		Echo:          true,
		Autoscroll:    false,
		ShowTimestamp: true,
	}
	if got != want {
		t.Errorf("Settings() = %+v, want %+v", got, want)
	}

	f.key(tcell.KeyF2)
	if f.ctrl.DisplayMode() != console.DisplayPlainText {
		t.Errorf("display mode did not wrap around: %v", f.ctrl.DisplayMode())
	}

	if status := f.row(4); !strings.Contains(status, "HEX") || !strings.Contains(status, "New line") {
		t.Errorf("status %q does not reflect the new settings", status)
	}
}

func TestView_MalformedHexShowsError(t *testing.T) {
	f := newFixture(t, 80, 6)
	f.ctrl.SetDataMode(console.DataHex)

	f.typeText("0g")
	f.key(tcell.KeyEnter)

	if len(f.device.Written()) != 0 {
		t.Error("malformed hex reached the device")
	}
	if f.view.Message() == "" {
		t.Error("Message() is empty after a malformed hex command")
	}
}

func TestView_ClearAndSave(t *testing.T) {
	f := newFixture(t, 80, 6)

	f.view.HandleEvent(tcell.NewEventKey(tcell.KeyCtrlS, 0, tcell.ModCtrl))
	if got := f.view.Message(); got != "nothing to save" {
		t.Errorf("Message() = %q on empty console", got)
	}

	f.receive("a\nb\n")
	f.view.HandleEvent(tcell.NewEventKey(tcell.KeyCtrlS, 0, tcell.ModCtrl))

	msg := f.view.Message()
	if !strings.HasPrefix(msg, "saved to ") {
		t.Fatalf("Message() = %q, want saved path", msg)
	}
	data, err := os.ReadFile(strings.TrimPrefix(msg, "saved to "))
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if string(data) != "a\r\nb\r\n\r\n" {
		t.Errorf("export = %q", data)
	}

	f.view.HandleEvent(tcell.NewEventKey(tcell.KeyCtrlL, 0, tcell.ModCtrl))
	if got := f.ctrl.LineCount(); got != 0 {
		t.Errorf("LineCount() after Ctrl-L = %d, want 0", got)
	}
	if got := f.row(0); got != "" {
		t.Errorf("row 0 after clear = %q", got)
	}
}

func TestView_Scrolling(t *testing.T) {
	f := newFixture(t, 40, 7) // five scrollback rows
	for i := 0; i < 20; i++ {
		f.receive(fmt.Sprintf("line %d\n", i))
	}

	f.view.Draw()
	if got := f.view.Top(); got != 16 {
		t.Fatalf("Top() = %d, want 16", got)
	}
	if got := f.row(0); got != "line 16" {
		t.Errorf("row 0 = %q, want %q", got, "line 16")
	}

	f.key(tcell.KeyPgUp)
	f.view.Draw()
	if got := f.view.Top(); got != 11 {
		t.Errorf("Top() after PgUp = %d, want 11", got)
	}

	f.receive("more\n")
	f.view.Draw()
	if got := f.view.Top(); got != 11 {
		t.Errorf("Top() moved to %d while scrolled back", got)
	}

	f.key(tcell.KeyHome)
	f.view.Draw()
	if got := f.row(0); got != "line 0" {
		t.Errorf("row 0 after Home = %q", got)
	}

	f.key(tcell.KeyEnd)
	f.receive("last\n")
	f.view.Draw()
	if got := f.view.Top(); got != f.ctrl.LineCount()-5 {
		t.Errorf("Top() after End = %d, want %d", got, f.ctrl.LineCount()-5)
	}
}

func TestView_AutoscrollOff(t *testing.T) {
	f := newFixture(t, 40, 7)
	f.ctrl.SetAutoscroll(false)

	for i := 0; i < 20; i++ {
		f.receive(fmt.Sprintf("line %d\n", i))
	}

	if got := f.row(0); got != "line 0" {
		t.Errorf("row 0 = %q, want the first line while autoscroll is off", got)
	}
}

func TestView_ClipsLongLines(t *testing.T) {
	f := newFixture(t, 8, 4)
	f.receive("0123456789\n界界界界界")

	if got := f.row(0); got != "01234567" {
		t.Errorf("row 0 = %q, want %q", got, "01234567")
	}
	if got := f.row(1); got != "界界界界" {
		t.Errorf("row 1 = %q, want %q", got, "界界界界")
	}
}

func TestView_SettingsMenu(t *testing.T) {
	f := newFixture(t, 80, 20)

	f.key(tcell.KeyF9)
	f.key(tcell.KeyEnter) // first row cycles the data mode

	if f.ctrl.DataMode() != console.DataHex {
		t.Errorf("DataMode() = %v, want hex", f.ctrl.DataMode())
	}

	f.typeText("x")
	if f.view.Input() != "" {
		t.Error("keys leaked to the input line while the menu was open")
	}

	f.key(tcell.KeyEscape)
	f.typeText("x")
	if f.view.Input() != "x" {
		t.Errorf("Input() = %q after closing the menu", f.view.Input())
	}
}

func TestView_HelpMenuListsBindings(t *testing.T) {
	f := newFixture(t, 80, 20)

	f.key(tcell.KeyF1)
	f.view.Draw()

	var screen strings.Builder
	for y := 0; y < 20; y++ {
		screen.WriteString(f.row(y))
		screen.WriteByte('\n')
	}

	for _, want := range []string{"Keys", "Toggle echo", "F5", "Ctrl-Q"} {
		if !strings.Contains(screen.String(), want) {
			t.Errorf("help missing %q:\n%s", want, screen.String())
		}
	}
}

func TestView_RunExitsOnCtrlQ(t *testing.T) {
	f := newFixture(t, 40, 6)

	done := make(chan error, 1)
	go func() { done <- f.view.Run(context.Background()) }()

	f.screen.InjectKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Ctrl-Q")
	}

	if !f.view.Quit() {
		t.Error("Quit() = false after Ctrl-Q")
	}
}

func TestView_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 40, 6)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.view.Run(ctx) }()

	f.receive("data\n")
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
