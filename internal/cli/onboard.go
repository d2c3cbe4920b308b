package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eralabs/clcl/internal/config"
)

// --- onboard selection model ---

type onboardChoice int

const (
	choiceUpgrade onboardChoice = iota
	choiceOverwrite
	choiceSkip
)

type onboardModel struct {
	choices []string
	cursor  int
	chosen  bool
	choice  onboardChoice
}

func (m onboardModel) Init() tea.Cmd { return nil }

func (m onboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.choice = choiceSkip
			m.chosen = true
			return m, tea.Quit
		case tea.KeyUp, tea.KeyShiftTab:
			if m.cursor > 0 {
				m.cursor--
			}
		case tea.KeyDown, tea.KeyTab:
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case tea.KeyEnter:
			m.choice = onboardChoice(m.cursor)
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m onboardModel) View() string {
	if m.chosen {
		return ""
	}

	s := "\n"
	s += fmt.Sprintf("  Config already exists at %s\n\n", DimStyle.Render(config.ConfigPath()))

	for i, choice := range m.choices {
		cursor := "  "
		if i == m.cursor {
			cursor = PromptStyle.Render("❯ ")
		}
		s += "  " + cursor + choice + "\n"
	}

	s += "\n" + DimStyle.Render("  ↑/↓ navigate · enter select · ctrl+c cancel") + "\n"
	return s
}

// --- credential fields model ---

type fieldsModel struct {
	labels   []string
	inputs   []textinput.Model
	focus    int
	done     bool
	canceled bool
}

func newFieldsModel(cfg *config.Config) fieldsModel {
	labels := []string{"Monitored address", "App password", "Inbox directory"}

	address := textinput.New()
	address.Placeholder = "you@example.com"
	address.SetValue(cfg.Channels.Email.Address)
	address.CharLimit = 128
	address.Width = 40
	address.Focus()

	password := textinput.New()
	password.Placeholder = "app password"
	password.SetValue(cfg.Channels.Email.AppPassword)
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 128
	password.Width = 40

	inbox := textinput.New()
	inbox.Placeholder = "~/.clcl/inbox"
	inbox.SetValue(cfg.Inbox.Dir)
	inbox.CharLimit = 256
	inbox.Width = 40

	return fieldsModel{
		labels: labels,
		inputs: []textinput.Model{address, password, inbox},
	}
}

func (m fieldsModel) Init() tea.Cmd { return textinput.Blink }

func (m fieldsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.canceled = true
			return m, tea.Quit
		case tea.KeyEnter, tea.KeyTab, tea.KeyDown:
			if msg.Type == tea.KeyEnter && m.focus == len(m.inputs)-1 {
				m.done = true
				return m, tea.Quit
			}
			m.inputs[m.focus].Blur()
			m.focus = (m.focus + 1) % len(m.inputs)
			return m, m.inputs[m.focus].Focus()
		case tea.KeyShiftTab, tea.KeyUp:
			m.inputs[m.focus].Blur()
			m.focus = (m.focus + len(m.inputs) - 1) % len(m.inputs)
			return m, m.inputs[m.focus].Focus()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m fieldsModel) View() string {
	if m.done || m.canceled {
		return ""
	}

	s := "\n"
	for i, in := range m.inputs {
		label := m.labels[i]
		if i == m.focus {
			label = PromptStyle.Render(label)
		}
		s += fmt.Sprintf("  %-20s %s\n", label, in.View())
	}
	s += "\n" + DimStyle.Render("  tab/enter next · esc cancel") + "\n"
	return s
}

// RunOnboard runs the onboard wizard: reconcile an existing config file,
// then collect the email credentials and inbox directory.
func RunOnboard() {
	cfgPath := config.ConfigPath()
	var cfg *config.Config

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s clcl Onboard", Logo)))

	if _, err := os.Stat(cfgPath); err == nil {
		m := onboardModel{
			choices: []string{
				"Upgrade — add new fields, keep existing values",
				"Overwrite — replace with fresh defaults",
				"Keep — leave the config file as is",
			},
		}
		p := tea.NewProgram(m)
		final, err := p.Run()
		if err != nil {
			fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
			os.Exit(1)
		}
		fm := final.(onboardModel)

		fmt.Println()
		switch fm.choice {
		case choiceUpgrade:
			upgraded, err := config.Upgrade()
			if err != nil {
				fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
				os.Exit(1)
			}
			cfg = upgraded
			fmt.Println("  " + OkStyle.Render("✓") + " Upgraded config")
		case choiceOverwrite:
			cfg = config.DefaultConfig()
			fmt.Println("  " + OkStyle.Render("✓") + " Reset config to defaults")
		default:
			loaded, err := config.Load()
			if err != nil {
				fmt.Println("  " + DimStyle.Render("Config unchanged"))
				return
			}
			cfg = loaded
		}
	} else {
		cfg = config.DefaultConfig()
	}

	fm := newFieldsModel(cfg)
	p := tea.NewProgram(fm)
	final, err := p.Run()
	if err != nil {
		fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
	result := final.(fieldsModel)
	if result.canceled {
		fmt.Println("  " + DimStyle.Render("Canceled, config unchanged"))
		return
	}

	cfg.Channels.Email.Address = result.inputs[0].Value()
	cfg.Channels.Email.AppPassword = result.inputs[1].Value()
	if dir := result.inputs[2].Value(); dir != "" {
		cfg.Inbox.Dir = dir
	}

	if err := config.Save(cfg); err != nil {
		fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
	fmt.Println("  " + OkStyle.Render("✓") + " Saved " + DimStyle.Render(cfgPath))

	if err := os.MkdirAll(cfg.InboxDir(), 0o755); err != nil {
		fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
	fmt.Println("  " + OkStyle.Render("✓") + " Inbox " + DimStyle.Render(cfg.InboxDir()))
	fmt.Println()
}
