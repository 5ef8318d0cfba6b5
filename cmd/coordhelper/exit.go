package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// errPredicateFalse reports a check that legitimately does not hold. It is
// an expected outcome and is not logged.
var errPredicateFalse = errors.New("predicate does not hold")

// commandExitError forwards the exit code of a wrapped command.
type commandExitError struct {
	code int
}

func (e *commandExitError) Error() string {
	return fmt.Sprintf("command exited with exit code %d", e.code)
}

func exitCode(err error, sig os.Signal) int {
	if err == nil {
		return exitSuccess
	}

	var exitErr *commandExitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	if sig != nil {
		if signal, ok := sig.(syscall.Signal); ok {
			log.WithError(err).WithField("signal", sig).Debug("interrupted")
			return 128 + int(signal)
		}
	}

	if errors.Is(err, errPredicateFalse) {
		return exitFailure
	}

	log.WithError(err).Error("failed")
	return exitFailure
}
