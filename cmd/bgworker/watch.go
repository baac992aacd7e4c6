package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Swind/go-bgworker/core"
	"github.com/Swind/go-bgworker/uiloop"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

const (
	defaultBarWidth = 40
	maxBarWidth     = 60
	// name column, spacing and state column around each bar
	barPadding = 24
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "completed":
		return completedStyle
	case "failed":
		return failedStyle
	case "cancelled":
		return cancelledStyle
	default:
		return runningStyle
	}
}

func barWidth(termWidth int) int {
	w := termWidth - barPadding
	if w > maxBarWidth {
		return maxBarWidth
	}
	if w < 10 {
		return 10
	}
	return w
}

// finishedMsg carries the summary once every task has completed.
type finishedMsg struct {
	summary summary
}

// watchModel renders one progress bar per task. Workload hooks run inside
// Update through the TeaRunner, so they mutate the model directly.
type watchModel struct {
	runner *uiloop.TeaRunner
	cancel context.CancelFunc

	names   []string
	bars    []progress.Model
	percent []float64
	states  []string

	cancelling bool
	summary    *summary
}

func newWatchModel(runner *uiloop.TeaRunner, cancel context.CancelFunc, tasks, width int) *watchModel {
	m := &watchModel{
		runner:  runner,
		cancel:  cancel,
		names:   make([]string, tasks),
		bars:    make([]progress.Model, tasks),
		percent: make([]float64, tasks),
		states:  make([]string, tasks),
	}
	for i := range tasks {
		m.names[i] = fmt.Sprintf("task-%d", i+1)
		m.bars[i] = progress.New(progress.WithDefaultGradient(), progress.WithWidth(width))
		m.states[i] = core.StatePending.String()
	}
	return m
}

func (m *watchModel) setProgress(index, percent int) {
	m.percent[index] = float64(percent) / 100
	if m.states[index] == core.StatePending.String() {
		m.states[index] = core.StateStarted.String()
	}
}

func (m *watchModel) setDone(index int, report taskReport) {
	m.states[index] = report.State
	m.percent[index] = float64(report.Progress) / 100
}

func (m *watchModel) Init() tea.Cmd {
	return nil
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.runner.Handle(msg) {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancelling = true
			m.cancel()
		}
	case tea.WindowSizeMsg:
		for i := range m.bars {
			m.bars[i].Width = barWidth(msg.Width)
		}
	case finishedMsg:
		m.summary = &msg.summary
		return m, tea.Quit
	}
	return m, nil
}

func (m *watchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("bgworker watch"))
	b.WriteString("\n\n")
	for i := range m.bars {
		fmt.Fprintf(&b, "%-8s %s %s\n",
			m.names[i], m.bars[i].ViewAs(m.percent[i]), stateStyle(m.states[i]).Render(m.states[i]))
	}
	b.WriteString("\n")
	switch {
	case m.summary != nil:
		b.WriteString(helpStyle.Render(fmt.Sprintf("finished in %s", m.summary.Elapsed)))
	case m.cancelling:
		b.WriteString(helpStyle.Render("cancelling..."))
	default:
		b.WriteString(helpStyle.Render("q: cancel remaining tasks"))
	}
	b.WriteString("\n")
	return b.String()
}

func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Run a workload with live progress bars",
		Flags:   workloadFlags(),
		Action:  WatchAction,
	}
}

func WatchAction(c *cli.Context) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return runWithFormat(c, formatText)
	}

	w, err := workloadFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}

	width := defaultBarWidth
	if cols, _, err := term.GetSize(fd); err == nil {
		width = barWidth(cols)
	}

	// Log output would corrupt the terminal while the program owns it.
	logger := core.NewNoOpLogger()
	inst, err := newInstruments(c.Context, cfg.Metrics, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: start metrics: %v", err), 1)
	}
	defer inst.Close()

	runner := uiloop.NewTeaRunner(cfg.Dispatch.Name, logger)
	defer runner.Stop()

	pool := core.NewElasticPool(cfg.NewPoolConfig(logger, inst.metrics))
	defer pool.Shutdown()
	inst.watch(pool, pool.ID(), runner, runner.Name())

	opts := append(cfg.DispatcherOptions(logger, inst.metrics), core.WithPool(pool))
	d := core.NewDispatcher(runner, opts...)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	model := newWatchModel(runner, cancel, w.Tasks, width)
	program := tea.NewProgram(model)
	runner.Attach(program)

	go func() {
		start := time.Now()
		reports := runWorkload(ctx, d, w, workloadHooks{
			OnProgress: model.setProgress,
			OnDone:     model.setDone,
		})
		program.Send(finishedMsg{summary: newSummary(d.Name(), pool.ID(), time.Since(start), reports)})
	}()

	if _, err := program.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if model.summary == nil {
		return nil
	}
	return writeSummary(c.App.Writer, formatText, *model.summary)
}
