package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/nostodon/internal/jobqueue"
	"github.com/desertthunder/nostodon/internal/shared"
	"github.com/desertthunder/nostodon/internal/ui"
	"github.com/urfave/cli/v3"
)

// JobsTUI launches the interactive job browser.
func (r *Runner) JobsTUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/nostodon-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	return r.withQueue(func(q *jobqueue.Queue) error {
		p := tea.NewProgram(ui.NewModel(ctx, q), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running TUI: %w", err)
		}
		return nil
	})
}
