// cdp-driver is a small command-line demonstration of the handler package:
// it attaches to a running browser's remote debugging endpoint, waits for a
// page target, navigates it to a url, and prints the page's url once the
// navigation settles.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cdpkit/handler"
	"github.com/cdpkit/handler/internal/discover"
	wstransport "github.com/cdpkit/handler/transport/ws"
)

var (
	flagEndpoint = flag.String("endpoint", discover.DefaultEndpoint, "remote debugging HTTP endpoint")
	flagURL      = flag.String("url", "https://example.com", "url to navigate the first page to")
	flagTimeout  = flag.Duration("timeout", 30*time.Second, "per-command timeout")
	flagVerbose  = flag.Bool("v", false, "enable debug logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout*3)
	defer cancel()

	level := slog.LevelInfo
	if *flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dc := discover.New(*flagEndpoint)
	ver, err := dc.Version(ctx)
	if err != nil {
		return fmt.Errorf("discover browser: %w", err)
	}

	conn, err := wstransport.Dial(ctx, ver.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial browser websocket: %w", err)
	}

	cfg := handler.NewHandlerConfig(
		handler.WithRequestTimeout(*flagTimeout),
		handler.WithLogger(logger),
		handler.WithWaitForInitialPage(true),
	)
	h := handler.NewHandler(conn, cfg)

	page, runErr := h.Start(ctx)
	if page == nil {
		return fmt.Errorf("wait for page: timed out or handler exited")
	}

	if _, err := page.Goto(ctx, *flagURL, *flagTimeout); err != nil {
		return fmt.Errorf("goto: %w", err)
	}
	url, err := page.WaitForNavigation(ctx)
	if err != nil {
		return fmt.Errorf("wait for navigation: %w", err)
	}
	fmt.Println(url)

	cancel()
	<-runErr
	return nil
}
