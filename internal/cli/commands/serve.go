package commands

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/conduit-lang/codegraph/internal/cli/ui"
)

// serve publishes builds on l until ctx is done. With watch set it
// rebuilds on input changes; otherwise it builds once and a failed build
// ends the command.
func (gen *generator) serve(ctx context.Context, l net.Listener, watch bool, debounce time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- gen.server.Serve(ctx, l)
		cancel()
	}()

	fmt.Fprint(gen.out, ui.Info(fmt.Sprintf("Serving graph at http://%s", l.Addr()), gen.noColor))

	var err error
	if watch {
		err = gen.watch(ctx, debounce)
	} else if err = gen.run(ctx); err == nil {
		fmt.Fprint(gen.out, ui.Info("Press Ctrl+C to stop.", gen.noColor))
		<-ctx.Done()
	}

	cancel()
	if serveErr := <-served; serveErr != nil && err == nil {
		err = serveErr
	}
	return err
}
