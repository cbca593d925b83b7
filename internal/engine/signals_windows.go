//go:build windows

package engine

import (
	"os"
	"os/signal"
)

// watchSignals on Windows only has os.Interrupt to work with; HUP-triggered
// reload and USR1-triggered state dumps are POSIX-only operator tools on
// this platform. There is no reload path here: the catalog is read only
// when the engine starts.
func (e *Engine) watchSignals() (stop func()) {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, os.Interrupt)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				select {
				case e.events <- shutdownSignal{}:
				case <-e.stop:
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
