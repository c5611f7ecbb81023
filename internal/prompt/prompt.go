// Package prompt asks the operator questions on the terminal.
package prompt

import (
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// ErrInterrupted is returned when the operator aborts a prompt with Ctrl-C.
var ErrInterrupted = errors.New("prompt interrupted")

// Prompter is the interactive surface the manager needs.
type Prompter interface {
	Confirm(message string, def bool) (bool, error)
	Input(message string) (string, error)
}

// Survey prompts through survey on the process terminal.
type Survey struct {
	Opts []survey.AskOpt
}

func (s Survey) Confirm(message string, def bool) (bool, error) {
	ok := def
	err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &ok, s.Opts...)
	return ok, mapErr(err)
}

func (s Survey) Input(message string) (string, error) {
	var out string
	err := survey.AskOne(&survey.Input{Message: message + ":"}, &out, s.Opts...)
	return out, mapErr(err)
}

func mapErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrInterrupted
	}
	return err
}

// Static answers every prompt with fixed values. It backs --yes style
// non-interactive runs.
type Static struct {
	Answer bool
	Text   string
}

func (s Static) Confirm(string, bool) (bool, error) { return s.Answer, nil }

func (s Static) Input(string) (string, error) { return s.Text, nil }
