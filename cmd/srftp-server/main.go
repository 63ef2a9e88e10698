// Command srftp-server runs the dispatcher described in §4.6/§5: one
// goroutine LISTENs on the well-known port and spawns a worker per
// accepted upload or download. Flag handling and signal-driven
// shutdown follow examples/udp-server's main loop in the teacher
// library.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/config"
	"github.com/nickolajgrishuk/srftp/internal/metrics"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
	"github.com/nickolajgrishuk/srftp/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to an ini config file (optional)")
		port       = flag.Uint("port", proto.WellKnownPort, "well-known listen port")
		workDir    = flag.String("dir", ".", "directory received uploads are written to, and downloads served from")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if isFlagSet("port") {
		cfg.ListenPort = uint16(*port)
	}
	if isFlagSet("dir") {
		cfg.WorkDir = *workDir
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	listener, err := netio.Bind(cfg.ListenPort)
	if err != nil {
		log.WithError(err).Fatal("failed to bind well-known port")
	}

	log.WithField("port", cfg.ListenPort).WithField("dir", cfg.WorkDir).Info("srftp-server listening")

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	dispatcher := server.New(listener, cfg.WorkDir, log)
	if err := dispatcher.Serve(ctx); err != nil {
		log.WithError(err).Error("dispatcher exited with error")
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
