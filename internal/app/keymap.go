package app

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the bindings used in handleKey.
type keyMap struct {
	Quit      key.Binding
	ForceQuit key.Binding
	NextField key.Binding
	PrevField key.Binding
	Apply     key.Binding
	Cancel    key.Binding
	Export    key.Binding
	Clear     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "Q"),
			key.WithHelp("q", "Quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "Dates"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab"),
		),
		Apply: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "Apply"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "Back"),
		),
		Export: key.NewBinding(
			key.WithKeys("e", "E", "ctrl+e"),
			key.WithHelp("e", "Export"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c", "C"),
			key.WithHelp("c", "Clear range"),
		),
	}
}
