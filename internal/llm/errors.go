package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks provider errors that will not go away on retry, such as
// billing or authentication failures. Callers stop instead of retrying.
var ErrFatalAPI = errors.New("fatal API error")

var fatalPatterns = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication failed",
	"unauthorized",
	"401",
	"403",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range fatalPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// wrapFatalError tags fatal API errors with ErrFatalAPI so callers can use
// errors.Is. Non-fatal errors pass through unchanged.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return errors.Join(ErrFatalAPI, err)
	}
	return err
}
