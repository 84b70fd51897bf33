package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("aborted by user")

// Confirm asks a yes/no question. Without a TTY (CI, agents, pipes) it
// returns def without prompting.
func Confirm(title, description string, def bool) (bool, error) {
	if !IsTerminal() || IsAgentMode() {
		return def, nil
	}

	answer := def
	err := runField(huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&answer))
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, ErrAborted
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return answer, nil
}

// Input asks for a single line of text, validated by validate when non-nil.
// Without a TTY it returns def.
func Input(title, placeholder, def string, validate func(string) error) (string, error) {
	if !IsTerminal() || IsAgentMode() {
		if validate != nil {
			if err := validate(def); err != nil {
				return "", err
			}
		}
		return def, nil
	}

	value := def
	field := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value)
	if validate != nil {
		field = field.Validate(validate)
	}
	if err := runField(field); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return value, nil
}

func runField(field huh.Field) error {
	return huh.NewForm(huh.NewGroup(field)).WithTheme(huh.ThemeDracula()).Run()
}
