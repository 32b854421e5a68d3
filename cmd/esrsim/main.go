// esrsim stands in for the scanner app during development. It listens where
// the phone would and sends each stdin line, or a demo code on an interval,
// as one frame.
// Usage: esrsim [-listen :8765] [-interval 2s]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/esr-receiver/internal/receiver"
)

// demoCodes are ESR coding lines in the format the scanner app produces.
var demoCodes = []string{
	"0100003949753>120000000000234478943216899+ 010001628>",
	"0100000453802>210000000003139471430009017+ 010001456>",
	"042>000000000001000000000000012+ 010037946>",
}

func main() {
	addr := flag.String("listen", ":"+strconv.Itoa(receiver.DefaultPort), "listen address")
	interval := flag.Duration("interval", 0, "send a demo code every interval (0 = read stdin)")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*addr, *interval, logger); err != nil {
		logger.Error("esrsim failed", "error", err)
		os.Exit(1)
	}
}

func run(addr string, interval time.Duration, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := listen(addr, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	logger.Info("waiting for receiver", "addr", s.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptLoop(gctx) })

	if interval > 0 {
		g.Go(func() error { return sendDemo(gctx, s, interval, logger) })
	} else {
		// The stdin reader cannot be interrupted; it ends with the process.
		go func() {
			if err := sendLines(os.Stdin, s, logger); err != nil {
				logger.Warn("stdin closed", "error", err)
			}
		}()
	}

	return g.Wait()
}

// sendDemo cycles through demoCodes until ctx is done.
func sendDemo(ctx context.Context, s *sender, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		code := demoCodes[i%len(demoCodes)]
		if err := s.Send(code); err != nil {
			logger.Debug("send skipped", "error", err)
			continue
		}
		logger.Info("sent", "text", code)
	}
}

// sendLines sends each non-empty line from r. The line "!drop" closes the
// current connection instead.
func sendLines(r io.Reader, s *sender, logger *slog.Logger) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "!drop":
			s.Drop()
			logger.Info("connection dropped")
			continue
		}
		if err := s.Send(line); err != nil {
			if errors.Is(err, errNoPeer) {
				logger.Warn("no receiver connected, line discarded")
				continue
			}
			logger.Warn("send failed", "error", err)
			continue
		}
		logger.Info("sent", "text", line)
	}
	return sc.Err()
}
