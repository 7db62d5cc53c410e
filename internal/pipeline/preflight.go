package pipeline

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Run modes.
const (
	ModeURL         = "url"
	ModeDescription = "description"
)

// ErrPreflight marks fatal prerequisite failures. No phase runs after one.
var ErrPreflight = errors.New("preflight failed")

// preflight validates prerequisites before any phase runs. A failure here
// is fatal and the job status is failed.
func (e *Engine) preflight(source, mode string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("%w: source is empty", ErrPreflight)
	}

	switch mode {
	case ModeURL:
		u, err := url.Parse(source)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: source %q is not a valid URL", ErrPreflight, source)
		}
	case ModeDescription:
		// free-form text, nothing more to check
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrPreflight, mode)
	}

	if e.state == nil {
		return fmt.Errorf("%w: no state store configured", ErrPreflight)
	}
	return nil
}
