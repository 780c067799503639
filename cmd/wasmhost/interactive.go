package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tetratelabs/wazero/api"
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	mod      api.Module
	filename string
	result   string
	funcs    []funcInfo
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
	history  []callRecord
}

type callRecord struct {
	err    error
	call   string
	result string
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, filename string, mod api.Module, funcs []funcInfo) *interactiveModel {
	return &interactiveModel{
		ctx:      ctx,
		filename: filename,
		mod:      mod,
		funcs:    funcs,
		state:    stateSelectFunc,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.state {
		case stateSelectFunc:
			return m, m.selectKey(msg)
		case stateInputArgs:
			return m, m.inputKey(msg)
		case stateShowResult:
			return m, m.resultKey(msg)
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.history = append(m.history, callRecord{call: m.funcs[m.selected].name, result: msg.result, err: msg.err})
		m.state = stateShowResult

	default:
		if m.state == stateInputArgs {
			var cmd tea.Cmd
			m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *interactiveModel) selectKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.funcs)-1 {
			m.selected++
		}
	case "enter":
		if len(m.funcs) == 0 {
			return nil
		}
		m.prepareInputs()
		if len(m.inputs) == 0 {
			return m.callFunction
		}
		m.state = stateInputArgs
	}
	return nil
}

// inputKey handles keys while arguments are edited; q is a valid character
// here, so only esc leaves.
func (m *interactiveModel) inputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		return m.callFunction
	case "esc":
		m.state = stateSelectFunc
		m.inputs = nil
		return nil
	case "tab", "shift+tab":
		if len(m.inputs) > 1 {
			step := 1
			if msg.String() == "shift+tab" {
				step = len(m.inputs) - 1
			}
			m.inputs[m.focusIdx].Blur()
			m.focusIdx = (m.focusIdx + step) % len(m.inputs)
			return m.inputs[m.focusIdx].Focus()
		}
		return nil
	}

	var cmd tea.Cmd
	m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
	return cmd
}

func (m *interactiveModel) resultKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "enter", "esc":
		m.state = stateSelectFunc
		m.result = ""
		m.err = nil
	}
	return nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = api.ValueTypeName(p)
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	params, err := parseArgs(f, raw)
	if err != nil {
		return callResultMsg{err: err}
	}

	results, err := m.mod.ExportedFunction(f.name).Call(m.ctx, params...)
	if err != nil {
		return callResultMsg{err: err}
	}
	if len(results) == 0 {
		return callResultMsg{result: "(no results)"}
	}
	return callResultMsg{result: formatResults(results, f.results)}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmhost"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	if len(m.funcs) == 0 {
		b.WriteString("The module exports no functions.\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + f.signature()))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if len(m.history) > 0 {
			b.WriteString(m.renderHistory())
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(api.ValueTypeName(f.params[i])))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

// renderHistory shows the most recent calls, newest last.
func (m *interactiveModel) renderHistory() string {
	const shown = 5
	recent := m.history
	if len(recent) > shown {
		recent = recent[len(recent)-shown:]
	}
	var b strings.Builder
	b.WriteString(helpStyle.Render("Recent calls:"))
	b.WriteString("\n")
	for _, r := range recent {
		b.WriteString("  " + funcStyle.Render(r.call) + " ")
		if r.err != nil {
			b.WriteString(errorStyle.Render(r.err.Error()))
		} else {
			b.WriteString(resultStyle.Render(r.result))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m *interactiveModel) formatFunc(f funcInfo) string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = typeStyle.Render(api.ValueTypeName(p))
	}
	result := ""
	if len(f.results) > 0 {
		results := make([]string, len(f.results))
		for i, r := range f.results {
			results[i] = typeStyle.Render(api.ValueTypeName(r))
		}
		result = " -> " + strings.Join(results, ", ")
	}
	return funcStyle.Render(f.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, filename string, mod api.Module, funcs []funcInfo) error {
	p := tea.NewProgram(newInteractiveModel(ctx, filename, mod, funcs), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
