package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Prev   key.Binding
	Next   key.Binding
	First  key.Binding
	Last   key.Binding
	Flag   key.Binding
	Clear  key.Binding
	Edit   key.Binding
	Submit key.Binding
	Leave  key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Prev:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "prev")),
		Next:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "next")),
		First:  key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "first")),
		Last:   key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "last")),
		Flag:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "flag")),
		Clear:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
		Edit:   key.NewBinding(key.WithKeys("enter", "i"), key.WithHelp("enter", "type answer")),
		Submit: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "submit")),
		Leave:  key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "leave")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Flag, k.Clear, k.Submit, k.Leave}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next, k.First, k.Last},
		{k.Flag, k.Clear, k.Edit},
		{k.Submit, k.Leave},
	}
}
