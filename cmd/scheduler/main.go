// Command scheduler runs the line-oriented scheduler on stdin, or serves it
// over TCP with one login session per connection when -listen is given.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/app"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/cli"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/config"
	"github.com/hackgods/vaccine-reservation-scheduling/internal/logging"
)

func main() {
	listen := flag.String("listen", "", "serve the line protocol on this TCP address instead of stdin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *listen, log); err != nil {
		log.Error("scheduler stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, listen string, log *slog.Logger) error {
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if listen == "" {
		// unblock the scanner on Ctrl-C
		release := context.AfterFunc(ctx, func() { _ = os.Stdin.Close() })
		defer release()

		if err := cli.New(rt.Service, os.Stdout, log).Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	log.Info("line protocol listening", slog.String("addr", ln.Addr().String()))
	return cli.NewServer(rt.Service, log).Serve(ctx, ln)
}
