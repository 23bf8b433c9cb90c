package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves the admin token signing secret from an environment
// variable, a file, or by prompting the operator. The value is cached after
// the first successful retrieval.
type Source struct {
	envVar string
	file   string
	prompt io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar, then file, before prompting on the terminal. Either
// may be empty to skip that step.
func NewSource(envVar, file string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), file: strings.TrimSpace(file), prompt: os.Stderr}
}

// Get returns the cached secret or resolves it on first use. Whitespace-only
// secrets are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return strings.TrimSpace(value), nil
		}
	}
	if s.file != "" {
		raw, err := os.ReadFile(s.file)
		if err != nil {
			return "", fmt.Errorf("read secret file: %w", err)
		}
		value := strings.TrimSpace(string(raw))
		if value == "" {
			return "", fmt.Errorf("secret file %s is empty", s.file)
		}
		return value, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if s.envVar != "" {
			return "", fmt.Errorf("admin secret required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("admin secret required and no terminal available")
	}

	fmt.Fprint(s.prompt, "Enter admin signing secret: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	value := strings.TrimSpace(string(bytes))
	if value == "" {
		return "", errors.New("admin secret cannot be empty")
	}
	return value, nil
}
