package console

import (
	"context"
	"errors"
	"io"

	"gpt-relay/internal/relay"

	tea "github.com/charmbracelet/bubbletea"
)

// Options 控制预览程序。
type Options struct {
	Title     string
	AltScreen bool
	Input     io.Reader
	Output    io.Writer

	// KeepOpen keeps the program running after the relay ends until the user
	// presses q.
	KeepOpen bool
}

// RunFunc drives one relay into surface and returns once it is terminal.
type RunFunc func(ctx context.Context, surface relay.Surface) (relay.Info, error)

// Run 启动 Bubble Tea 程序并在其中展示 run 驱动的 relay。
func Run(ctx context.Context, opts Options, run RunFunc) (relay.Info, error) {
	if run == nil {
		return relay.Info{}, errors.New("console: nil run func")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(opts.Title, cancel)
	model.quitOnFinish = !opts.KeepOpen

	var programOptions []tea.ProgramOption
	if opts.AltScreen {
		programOptions = append(programOptions, tea.WithAltScreen())
	}
	if opts.Input != nil {
		programOptions = append(programOptions, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOptions = append(programOptions, tea.WithOutput(opts.Output))
	}
	program := tea.NewProgram(model, programOptions...)
	surface := NewSurface(program.Send)

	var (
		info   relay.Info
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		info, runErr = run(ctx, surface)
		program.Send(finishedMsg{info: info, err: runErr})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-done
		return info, err
	}
	cancel()
	<-done
	return info, runErr
}
