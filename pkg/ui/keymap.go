package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Binding maps a key to a console action
type Binding struct {
	Name        string
	Key         tcell.Key
	Char        rune
	Mods        tcell.ModMask
	Description string
	Handler     func()
}

// Matches checks if the given key event matches this binding. Modifiers are
// only compared for rune keys; control keys carry them in the key code.
func (b Binding) Matches(ev *tcell.EventKey) bool {
	if b.Key != tcell.KeyRune {
		return ev.Key() == b.Key
	}

	return ev.Key() == tcell.KeyRune && ev.Rune() == b.Char && ev.Modifiers() == b.Mods
}

// KeyName formats the key combination for display
func (b Binding) KeyName() string {
	if b.Key != tcell.KeyRune {
		if name, ok := tcell.KeyNames[b.Key]; ok {
			return name
		}
		return fmt.Sprintf("Key(%d)", b.Key)
	}

	var parts []string
	if b.Mods&tcell.ModCtrl != 0 {
		parts = append(parts, "Ctrl")
	}
	if b.Mods&tcell.ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if b.Mods&tcell.ModShift != 0 {
		parts = append(parts, "Shift")
	}
	parts = append(parts, string(b.Char))

	return strings.Join(parts, "-")
}

// Keymap is an ordered set of bindings; the first match wins
type Keymap struct {
	bindings []Binding
}

// Bind adds a binding, replacing one with the same name
func (k *Keymap) Bind(b Binding) {
	for i := range k.bindings {
		if k.bindings[i].Name == b.Name {
			k.bindings[i] = b
			return
		}
	}
	k.bindings = append(k.bindings, b)
}

// Lookup returns the binding with the given name
func (k *Keymap) Lookup(name string) (Binding, bool) {
	for _, b := range k.bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// Bindings returns the bindings in registration order
func (k *Keymap) Bindings() []Binding {
	return append([]Binding(nil), k.bindings...)
}

// Dispatch runs the handler of the first binding matching ev and reports
// whether one matched
func (k *Keymap) Dispatch(ev *tcell.EventKey) bool {
	for _, b := range k.bindings {
		if b.Matches(ev) {
			if b.Handler != nil {
				b.Handler()
			}
			return true
		}
	}
	return false
}
