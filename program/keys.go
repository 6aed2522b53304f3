package main

import "github.com/charmbracelet/bubbles/key"

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Pause, k.Clear, k.Mode, k.Buffer, k.Send, k.Help}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Pause, k.Clear, k.Reconnect},
		{k.Mode, k.Buffer, k.Dark},
		{k.Timestamp, k.Autoscroll, k.Up, k.Down},
		{k.Send, k.Rename, k.Legend, k.Help},
	}
}

type keyMap struct {
	Pause      key.Binding
	Clear      key.Binding
	Mode       key.Binding
	Buffer     key.Binding
	Timestamp  key.Binding
	Autoscroll key.Binding
	Dark       key.Binding
	Send       key.Binding
	Rename     key.Binding
	Legend     key.Binding
	Reconnect  key.Binding
	Up         key.Binding
	Down       key.Binding
	Submit     key.Binding
	Cancel     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p/space", "pause"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear"),
	),
	Mode: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "xt/xy"),
	),
	Buffer: key.NewBinding(
		key.WithKeys("b"),
		key.WithHelp("b", "buffer size"),
	),
	Timestamp: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "timestamps"),
	),
	Autoscroll: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "autoscroll"),
	),
	Dark: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "dark mode"),
	),
	Send: key.NewBinding(
		key.WithKeys("i", ":"),
		key.WithHelp("i", "send"),
	),
	Rename: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "rename series"),
	),
	Legend: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next series"),
	),
	Reconnect: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reconnect"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k", "pgup"),
		key.WithHelp("↑/k", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j", "pgdown"),
		key.WithHelp("↓/j", "scroll down"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q/ctrl+c", "quit"),
	),
}
