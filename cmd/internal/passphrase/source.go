package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	ErrEmpty      = errors.New("passphrase: empty")
	ErrNoTerminal = errors.New("passphrase: no terminal available")
	ErrMismatch   = errors.New("passphrase: confirmation does not match")
)

// PromptFunc reads one secret after showing prompt.
type PromptFunc func(prompt string) (string, error)

// Source resolves a keystore passphrase from an environment variable or an
// interactive prompt. The first result is cached.
type Source struct {
	envVar string
	label  string
	lookup func(string) (string, bool)
	prompt PromptFunc

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on the controlling terminal. label
// names the secret in prompts and errors, e.g. "wallet keystore".
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	return &Source{
		envVar: strings.TrimSpace(envVar),
		label:  label,
		lookup: os.LookupEnv,
		prompt: terminalPrompt,
	}
}

// WithPrompt replaces the interactive reader.
func (s *Source) WithPrompt(p PromptFunc) *Source {
	if p != nil {
		s.prompt = p
	}
	return s
}

// Get returns the passphrase for an existing keystore.
func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve(false) })
	return s.value, s.err
}

// GetNew returns the passphrase for a keystore about to be created. An
// interactive operator is asked twice.
func (s *Source) GetNew() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve(true) })
	return s.value, s.err
}

func (s *Source) resolve(confirm bool) (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookup(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%w: %s is set but blank", ErrEmpty, s.envVar)
			}
			return value, nil
		}
	}
	value, err := s.prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if errors.Is(err, ErrNoTerminal) && s.envVar != "" {
		return "", fmt.Errorf("%w: set %s for the %s passphrase", ErrNoTerminal, s.envVar, s.label)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s passphrase", ErrEmpty, s.label)
	}
	if confirm {
		again, err := s.prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", err
		}
		if again != value {
			return "", ErrMismatch
		}
	}
	return value, nil
}

func terminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
