package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-cook/diag"
	"github.com/wippyai/wasm-cook/loader"
	"github.com/wippyai/wasm-cook/scope"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Cook units interactively and call their exports",
		Long: `Enter a unit and press ctrl+d to cook it. Each unit links against the
units cooked before it, so later units can import earlier ones by name.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD580"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateEdit modelState = iota
	stateSelectFunc
	stateInputArgs
	stateShowResult
)

type replModel struct {
	err      error
	env      *env
	host     *scope.Host
	parent   scope.Context
	console  *bytes.Buffer
	loaders  []*loader.Loader
	diags    []diag.Diagnostic
	funcs    []funcInfo
	inputs   []textinput.Model
	editor   textarea.Model
	result   string
	output   string
	units    int
	selected int
	focusIdx int
	state    modelState
}

func newReplModel(e *env, host *scope.Host, console *bytes.Buffer) *replModel {
	ta := textarea.New()
	ta.Placeholder = "(module $name ...)"
	ta.ShowLineNumbers = true
	ta.SetWidth(80)
	ta.SetHeight(12)
	ta.Focus()
	return &replModel{
		env:     e,
		host:    host,
		parent:  host,
		console: console,
		editor:  ta,
		state:   stateEdit,
	}
}

type cookedMsg struct {
	err    error
	loader *loader.Loader
	diags  []diag.Diagnostic
	funcs  []funcInfo
}

type callResultMsg struct {
	err    error
	result string
	output string
}

func (m *replModel) Init() tea.Cmd {
	return textarea.Blink
}

// cook compiles the editor text as the next unit, parented by the last
// cooked loader.
func (m *replModel) cook() tea.Cmd {
	m.units++
	name := fmt.Sprintf("unit%d.wat", m.units)
	text := m.editor.Value()
	parent := m.parent
	e := m.env

	return func() tea.Msg {
		ctx := context.Background()
		s := e.session(parent)
		err := s.Cook(ctx, name, text)
		var diags []diag.Diagnostic
		if o := s.Outcome(); o != nil {
			diags = o.Diagnostics()
		}
		if err != nil {
			return cookedMsg{err: err, diags: diags}
		}

		l, err := s.Loader()
		if err != nil {
			return cookedMsg{err: err, diags: diags}
		}
		var funcs []funcInfo
		for _, art := range l.Artifacts() {
			u, err := l.Resolve(ctx, art)
			if err != nil {
				_ = l.Close(ctx)
				return cookedMsg{err: err, diags: diags}
			}
			for _, exp := range u.Exports() {
				funcs = append(funcs, describe(u, exp))
			}
		}
		return cookedMsg{loader: l, diags: diags, funcs: funcs}
	}
}

func (m *replModel) close() {
	ctx := context.Background()
	for i := len(m.loaders) - 1; i >= 0; i-- {
		_ = m.loaders[i].Close(ctx)
	}
	m.loaders = nil
	_ = m.host.Close(ctx)
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.close()
			return m, tea.Quit
		}
		if m.state == stateEdit {
			return m.updateEditor(msg)
		}

		switch msg.String() {
		case "q":
			if m.state == stateSelectFunc {
				m.close()
				return m, tea.Quit
			}

		case "e":
			if m.state == stateSelectFunc {
				m.state = stateEdit
				m.editor.Reset()
				return m, m.editor.Focus()
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result, m.output, m.err = "", "", nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result, m.output, m.err = "", "", nil
			}
		}

	case cookedMsg:
		m.diags = msg.diags
		m.err = msg.err
		if msg.err == nil {
			m.loaders = append(m.loaders, msg.loader)
			m.parent = msg.loader
			m.funcs = append(m.funcs, msg.funcs...)
			m.state = stateSelectFunc
			m.editor.Blur()
		}

	case callResultMsg:
		m.result = msg.result
		m.output = msg.output
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *replModel) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+d":
		if strings.TrimSpace(m.editor.Value()) == "" {
			return m, nil
		}
		m.err, m.diags = nil, nil
		return m, m.cook()
	case "esc":
		if len(m.funcs) > 0 {
			m.state = stateSelectFunc
			m.editor.Blur()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m *replModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *replModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	values := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		values[i] = input.Value()
	}
	args, err := convertArgs(f, values)
	if err != nil {
		return callResultMsg{err: err}
	}

	m.console.Reset()
	res, err := f.unit.Call(context.Background(), f.name, args...)
	out := m.console.String()
	if err != nil {
		return callResultMsg{err: err, output: out}
	}
	return callResultMsg{result: formatResults(f, res), output: out}
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("watcook"))
	fmt.Fprintf(&b, " %d unit(s), %d export(s)\n\n", len(m.loaders), len(m.funcs))

	switch m.state {
	case stateEdit:
		b.WriteString(m.editor.View())
		b.WriteString("\n\n")
		m.renderDiagnostics(&b)
		if m.err != nil && len(m.diags) == 0 {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		help := "ctrl+d cook • ctrl+c quit"
		if len(m.funcs) > 0 {
			help = "ctrl+d cook • esc exports • ctrl+c quit"
		}
		b.WriteString(helpStyle.Render(help))

	case stateSelectFunc:
		m.renderDiagnostics(&b)
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatFunc(f)))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • e new unit • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Calling %s\n\n", funcStyle.Render(f.name))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", funcStyle.Render(f.name))
		if m.output != "" {
			b.WriteString(m.output)
			if !strings.HasSuffix(m.output, "\n") {
				b.WriteString("\n")
			}
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • ctrl+c quit"))
	}

	return b.String()
}

func (m *replModel) renderDiagnostics(b *strings.Builder) {
	if len(m.diags) == 0 {
		return
	}
	for _, d := range m.diags {
		var line bytes.Buffer
		plainPrinter(&line).diagnostic(d)
		text := strings.TrimSuffix(line.String(), "\n")
		switch {
		case d.Severity == diag.SevError:
			b.WriteString(errorStyle.Render(text))
		case d.Severity.IsWarning():
			b.WriteString(warnStyle.Render(text))
		default:
			b.WriteString(helpStyle.Render(text))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func (m *replModel) formatFunc(f funcInfo) string {
	var params []string
	for _, p := range f.params {
		params = append(params, p.name+": "+typeStyle.Render(p.typeStr))
	}
	result := ""
	if len(f.results) > 0 {
		rs := make([]string, len(f.results))
		for i, r := range f.results {
			rs[i] = witTypeStr(r)
		}
		result = " -> " + typeStyle.Render(strings.Join(rs, ", "))
	}
	return f.unit.Name() + "." + funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runRepl(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	console := &bytes.Buffer{}
	host, err := e.host(cmd.Context(), console)
	if err != nil {
		return err
	}
	p := tea.NewProgram(newReplModel(e, host, console), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
