package ui

import (
	"strings"
)

// Control ids, kept from the page the filters were first built for so saved
// state and scripts can refer to them.
const (
	CellTypeControl  = "cell_type_filter"
	ClusterControl   = "cluster_filter"
	IterationControl = "iteration_filter"
)

// Option is one entry of a select control. An empty Value is the sentinel
// meaning "no filter".
type Option struct {
	Value    string
	Label    string
	Disabled bool
}

// SelectControl is a dropdown: a list of options, one selected, and an
// enabled flag.
type SelectControl struct {
	ID       string
	Title    string
	sentinel string
	options  []Option
	selected int
	enabled  bool
	loading  bool
}

// NewSelectControl returns a disabled control holding only its sentinel.
func NewSelectControl(id, title, sentinel string) *SelectControl {
	s := &SelectControl{ID: id, Title: title, sentinel: sentinel}
	s.Reset()
	return s
}

// Reset leaves only the sentinel and disables the control.
func (s *SelectControl) Reset() {
	s.options = []Option{{Label: s.sentinel}}
	s.selected = 0
	s.enabled = false
	s.loading = false
}

// SetLoading marks a lookup for this control as in flight. The control is
// reset and stays disabled until options arrive.
func (s *SelectControl) SetLoading() {
	s.Reset()
	s.loading = true
}

// Populate replaces the options with the sentinel, then extra (usually
// disabled notices), then one option per value, and enables the control.
// The sentinel is selected.
func (s *SelectControl) Populate(values []string, extra ...Option) {
	s.options = make([]Option, 0, len(values)+len(extra)+1)
	s.options = append(s.options, Option{Label: s.sentinel})
	s.options = append(s.options, extra...)
	for _, v := range values {
		s.options = append(s.options, Option{Value: v, Label: v})
	}
	s.selected = 0
	s.enabled = true
	s.loading = false
}

// SetError replaces the options with a single disabled message and disables
// the control.
func (s *SelectControl) SetError(msg string) {
	s.options = []Option{{Label: msg, Disabled: true}}
	s.selected = 0
	s.enabled = false
	s.loading = false
}

// Options returns the current options.
func (s *SelectControl) Options() []Option {
	return s.options
}

// Labels returns the option labels in order.
func (s *SelectControl) Labels() []string {
	labels := make([]string, len(s.options))
	for i, o := range s.options {
		labels[i] = o.Label
	}
	return labels
}

// Enabled reports whether the control accepts input.
func (s *SelectControl) Enabled() bool {
	return s.enabled
}

// Loading reports whether a lookup for this control is in flight.
func (s *SelectControl) Loading() bool {
	return s.loading
}

// Failed reports whether the control shows a lookup error.
func (s *SelectControl) Failed() bool {
	return len(s.options) == 1 && s.options[0].Disabled
}

// Value returns the selected value; "" for the sentinel.
func (s *SelectControl) Value() string {
	if s.selected < 0 || s.selected >= len(s.options) {
		return ""
	}
	return s.options[s.selected].Value
}

// Selected returns the selected option.
func (s *SelectControl) Selected() Option {
	if s.selected < 0 || s.selected >= len(s.options) {
		return Option{}
	}
	return s.options[s.selected]
}

// Select picks the enabled option with value. It reports false, leaving the
// selection alone, when no such option exists.
func (s *SelectControl) Select(value string) bool {
	for i, o := range s.options {
		if o.Value == value && !o.Disabled {
			s.selected = i
			return true
		}
	}
	return false
}

// Move steps the selection by delta over enabled options, wrapping around.
// It reports whether the selection changed. Disabled controls do not move.
func (s *SelectControl) Move(delta int) bool {
	if !s.enabled || len(s.options) == 0 || delta == 0 {
		return false
	}
	n := len(s.options)
	i := s.selected
	for range n {
		i = ((i+delta)%n + n) % n
		if !s.options[i].Disabled {
			break
		}
	}
	if i == s.selected || s.options[i].Disabled {
		return false
	}
	s.selected = i
	return true
}

// View renders the control on one line: title, then the selected label.
func (s *SelectControl) View(width int, focused bool, t Theme) string {
	var sb strings.Builder
	title := t.SecondaryText.Render(s.Title + ":")
	if focused {
		title = t.PrimaryBold.Render("▸ " + s.Title + ":")
	}
	sb.WriteString(title)
	sb.WriteString(" ")

	label := s.Selected().Label
	switch {
	case s.loading:
		label = t.MutedText.Render(truncate(label+" …", width))
	case s.Failed():
		label = t.ErrorText.Render(truncate(label, width))
	case !s.enabled:
		label = t.MutedText.Render(truncate(label, width))
	case focused:
		label = t.Selected.Render("‹ " + truncate(label, width) + " ›")
	default:
		label = t.Base.Render(truncate(label, width))
	}
	sb.WriteString(label)
	return sb.String()
}
