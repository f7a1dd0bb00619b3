package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/KazDragon/munin-acceptance/internal/app"
	"github.com/KazDragon/munin-acceptance/internal/server"
	"github.com/KazDragon/munin-acceptance/internal/transport"
	"github.com/KazDragon/munin-acceptance/internal/version"
)

func newApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Name = "munind"
	cliApp.Usage = "telnet server for terminal applications"
	cliApp.Version = version.VERSION + " (" + version.Commit + ")"
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:   "port, p",
			EnvVar: "MUNIND_PORT",
			Value:  4000,
			Usage:  "TCP port to listen on",
		},
		cli.StringFlag{
			Name:   "bind-address, b",
			EnvVar: "MUNIND_BIND",
			Usage:  "address to bind the listener to (all interfaces when empty)",
		},
		cli.StringFlag{
			Name:   "metrics-addr",
			EnvVar: "MUNIND_METRICS_ADDR",
			Usage:  "serve Prometheus metrics on this address (off when empty)",
		},
		cli.BoolFlag{
			Name:   "debug, D",
			EnvVar: "MUNIND_DEBUG",
			Usage:  "log debug information",
		},
	}
	cliApp.Action = run
	cliApp.Commands = []cli.Command{
		{
			Name:  "version",
			Usage: "print the version and exit",
			Action: func(c *cli.Context) error {
				fmt.Fprintf(c.App.Writer, "munind %s (%s)\n", version.VERSION, version.Commit)
				return nil
			},
		},
	}
	return cliApp
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.WithError(err).Fatal("munind exited")
	}
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	addr := fmt.Sprintf("%s:%d", c.String("bind-address"), c.Int("port"))
	ln, err := transport.Listen(addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.WithField("port", ln.Port()).Info("munind listening")

	if maddr := c.String("metrics-addr"); maddr != "" {
		go serveMetrics(maddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = server.New(ln, app.Factory).Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shut down")
		return nil
	}
	return err
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics endpoint failed")
	}
}
