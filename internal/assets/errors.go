package assets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var (
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("esbuild failed with errors")
	// ErrNotBuilt indicates metadata was requested before a build finished
	ErrNotBuilt = errors.New("assets not built yet, call Build() first")
	// ErrExternalTool indicates an external transformer such as lessc failed
	ErrExternalTool = errors.New("external tool failed")
	// ErrUnknownTarget indicates a browser target esbuild has no engine for
	ErrUnknownTarget = errors.New("unknown browser target")
	// ErrChainOrder indicates a step received content it cannot process
	ErrChainOrder = errors.New("step cannot process the previous step's output")
)

func messagesError(base error, msgs []api.Message) error {
	texts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		texts = append(texts, formatMessage(msg))
	}
	return fmt.Errorf("%w: %s", base, strings.Join(texts, "; "))
}

func formatMessage(msg api.Message) string {
	if msg.Location == nil {
		return msg.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)
}

// buildError is a failed build whose first plugin error is still
// reachable with errors.Is.
type buildError struct {
	err   error
	cause error
}

func (e *buildError) Error() string {
	return e.err.Error()
}

func (e *buildError) Unwrap() []error {
	return []error{e.err, e.cause}
}
