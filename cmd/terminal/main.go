// terminal runs a simulation session behind the bubbletea dashboard.
// The session ends when its scaled duration elapses or the dashboard
// quits, whichever comes first.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pchave/agentmarket/internal/config"
	"github.com/pchave/agentmarket/internal/logging"
	"github.com/pchave/agentmarket/internal/session"
	"github.com/pchave/agentmarket/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "terminal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to session YAML (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal; logs would tear the UI apart.
	log := logging.Nop()

	sess, err := session.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		_ = sess.Run(ctx)
	}()

	program := tea.NewProgram(tui.NewModel(sess, cfg.Market.Symbol), tea.WithAltScreen())
	go func() {
		// End the UI when the session clock runs out.
		<-sessionDone
		program.Quit()
	}()

	_, uiErr := program.Run()

	// The user may have quit early; stop the market too.
	cancel()
	<-sessionDone

	return uiErr
}
