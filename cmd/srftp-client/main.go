// Command srftp-client drives interactive uploads and downloads
// against a srftp-server, reading "upload <name>", "download <name>"
// and "quit" commands from stdin. The flag/signal shape follows
// examples/udp-client's main loop in the teacher library.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/client"
	"github.com/nickolajgrishuk/srftp/internal/config"
	"github.com/nickolajgrishuk/srftp/internal/netio"
	"github.com/nickolajgrishuk/srftp/internal/proto"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to an ini config file (optional)")
		host       = flag.String("host", "127.0.0.1", "server host")
		port       = flag.Uint("port", proto.WellKnownPort, "server well-known port")
		workDir    = flag.String("dir", ".", "directory uploads are read from and downloads are written to")
		noProgress = flag.Bool("no-progress", false, "disable the terminal progress bar")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	serverAddr, err := netio.ResolveAddr(*host, uint16(*port))
	if err != nil {
		log.WithError(err).Fatal("failed to resolve server address")
	}

	driver := client.New(serverAddr, *workDir, log)
	driver.ShowProgress = !*noProgress

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Println("srftp client ready. Commands: upload <name>, download <name>, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "quit", "exit":
			return

		case "upload":
			if len(fields) != 2 {
				fmt.Println("usage: upload <name>")
				continue
			}
			if err := driver.Upload(ctx, fields[1]); err != nil {
				log.WithError(err).Error("upload failed")
				continue
			}
			fmt.Println("upload complete")

		case "download":
			if len(fields) != 2 {
				fmt.Println("usage: download <name>")
				continue
			}
			if err := driver.Download(ctx, fields[1]); err != nil {
				log.WithError(err).Error("download failed")
				continue
			}
			fmt.Println("download complete")

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}
