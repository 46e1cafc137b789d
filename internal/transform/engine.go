// Package transform converts SWIFT MT style messages between formats at the
// field level. The engine is pure: it keeps no state, performs no I/O, and is
// safe to call concurrently for distinct inputs. Expected input problems are
// reported as result statuses, never as errors.
package transform

import (
	"fmt"
	"strings"

	"mtbridge/internal/message"
)

// Result is the outcome of one Transform call. Confidence is a coarse
// signal: 1.0 for SUCCESS, 0.8 for PARTIAL_SUCCESS, 0.0 for failures.
type Result struct {
	Status     message.Status
	Output     string
	Error      string
	Warnings   []string
	Confidence float64
}

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Transform applies the mapper selected by kind. Blank input yields
// PARSE_ERROR; unknown kinds yield FAILED with an explicit error.
func (e *Engine) Transform(input string, kind message.Kind) Result {
	if strings.TrimSpace(input) == "" {
		return Result{
			Status: message.StatusParseError,
			Error:  "input message is empty",
		}
	}

	switch kind {
	case message.KindMT103ToMT202:
		return mapMT103ToMT202(input)
	case message.KindMT202ToMT103:
		return mapMT202ToMT103(input)
	case message.KindEnrich:
		return mapEnrich(input)
	case message.KindNormalize:
		return mapNormalize(input)
	default:
		return Result{
			Status: message.StatusFailed,
			Error:  fmt.Sprintf("transformation kind %q not implemented", kind),
		}
	}
}

func success(output string) Result {
	return Result{Status: message.StatusSuccess, Output: output, Confidence: 1.0}
}

func partial(output string, warnings []string) Result {
	return Result{
		Status:     message.StatusPartialSuccess,
		Output:     output,
		Warnings:   warnings,
		Confidence: 0.8,
	}
}

func validationError(tag string) Result {
	return Result{
		Status: message.StatusValidationError,
		Error:  fmt.Sprintf("missing required field :%s:", tag),
	}
}
