package main

import (
	"errors"

	"github.com/forgebuild/forge/internal/project"
)

func isConfigErr(err error) bool {
	var e *project.ConfigError
	return errors.As(err, &e)
}

func isCycleErr(err error) bool {
	var e *project.CycleError
	return errors.As(err, &e)
}

func isBuildFailedErr(err error) bool {
	var e *project.BuildFailedError
	return errors.As(err, &e)
}

func isMissingArtifactErr(err error) bool {
	var e *project.MissingArtifactError
	return errors.As(err, &e)
}

// formattedErr pairs an errmsg-rendered message (what gets printed) with
// the original structured error (what exitCodeFor inspects via errors.As),
// so formatting a message for the user never loses the type main() needs
// to pick the right exit code.
type formattedErr struct {
	underlying error
	rendered   string
}

func wrapFormatted(err error, rendered string) error {
	return &formattedErr{underlying: err, rendered: rendered}
}

func (e *formattedErr) Error() string { return e.rendered }
func (e *formattedErr) Unwrap() error { return e.underlying }

// usageError marks a flag-combination or argument mistake, mapped to
// ExitUsage rather than the generic ExitGeneral.
type usageError string

func (e usageError) Error() string { return string(e) }

func isUsageErr(err error) bool {
	var e usageError
	return errors.As(err, &e)
}
