package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/loykin/asamgr"
	"github.com/loykin/asamgr/internal/eos"
	"github.com/loykin/asamgr/internal/schedule"
)

var (
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleBold  = lipgloss.NewStyle().Bold(true)
)

// spin shows a spinner on w while a long step runs. It only animates when
// stdout is a terminal; the returned func stops it.
func spin(w io.Writer, msg string) func() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + msg + "..."
	s.Start()
	return s.Stop
}

func field(w io.Writer, label string, value any) {
	_, _ = fmt.Fprintf(w, "%s %v\n", styleLabel.Render(fmt.Sprintf("%-12s", label+":")), value)
}

// renderStatus prints st the way the status command shows it.
func renderStatus(w io.Writer, st *asamgr.Status, full bool) {
	if a := st.Action.Action; a.Valid() && a != schedule.None {
		_, _ = fmt.Fprintln(w, styleWarn.Render(fmt.Sprintf("Scheduled %s at %s (pid %d)",
			strings.ToLower(st.Action.Action.String()),
			st.Action.ExpectedTime.Local().Format(time.DateTime), st.Action.PID)))
	}
	if !st.Running {
		_, _ = fmt.Fprintln(w, styleError.Render("Server is not running"))
		return
	}
	field(w, "PID", st.PID)
	field(w, "Uptime", st.Uptime)

	switch {
	case st.ListenPort == 0:
		_, _ = fmt.Fprintln(w, styleError.Render("Server is not listening"))
		return
	case !st.Listening():
		_, _ = fmt.Fprintln(w, styleError.Render(fmt.Sprintf("Server listens on port %d instead of %d", st.ListenPort, st.Port)))
		return
	}
	field(w, "Port", st.Port)
	if !st.Reachable {
		_, _ = fmt.Fprintln(w, styleError.Render("Server is down"))
		return
	}
	_, _ = fmt.Fprintln(w, styleOK.Render("Server is up"))

	if s := st.Session; s != nil {
		field(w, "Name", styleBold.Render(s.Name))
		field(w, "Map", s.Map)
		field(w, "Day", s.Day)
		field(w, "Players", fmt.Sprintf("%d / %d", s.Players, s.MaxPlayers))
		if len(s.Mods) > 0 {
			field(w, "Mods", strings.Join(s.Mods, ", "))
		}
		field(w, "BattlEye", s.BattlEye)
		field(w, "PvE", s.PvE)
		field(w, "Version", s.Version)
		field(w, "Address", s.Address)
		return
	}
	if full && st.EOSError != nil {
		msg := "EOS lookup failed: " + st.EOSError.Error()
		if errors.Is(st.EOSError, eos.ErrNoCredentials) {
			msg = "EOS credentials not found; create them with 'asamgr eos-credentials'"
		}
		_, _ = fmt.Fprintln(w, styleWarn.Render(msg))
	}
	field(w, "Players", fmt.Sprintf("%d / ?", st.Players))
}
