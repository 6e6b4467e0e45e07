package page

import (
	"bufio"
	"context"
	"io"

	"github.com/betafish-inc/dualthread"
)

// LineTrigger activates the Controller trigger once per line read from Reader, the terminal stand-in
// for the page button.
type LineTrigger struct {
	Reader     io.Reader
	Controller *Controller
}

// Start implements dualthread.Worker. It returns when ctx is done or Reader is exhausted.
func (t *LineTrigger) Start(ctx context.Context, _ *dualthread.Host) {
	lines := make(chan struct{})
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(t.Reader)
		for scanner.Scan() {
			select {
			case lines <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-lines:
			if !ok {
				return
			}
			if err := t.Controller.OnTriggerActivated(ctx); err != nil {
				t.Controller.log.WithError(err).Error("trigger failed")
			}
		}
	}
}
