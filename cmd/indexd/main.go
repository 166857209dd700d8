// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/dfklabs/indexd/api"
	"github.com/dfklabs/indexd/log"
	"github.com/dfklabs/indexd/metrics"
	"github.com/dfklabs/indexd/node"
)

var (
	version   string
	gitCommit string
	gitTag    string
)

var logger = log.WithContext("pkg", "main")

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "indexd",
		Usage:     "DFK multi-chain event indexer",
		Copyright: "2025 The DFKIndex developers",
		Flags: []cli.Flag{
			configFlag,
			dataDirFlag,
			apiAddrFlag,
			apiCorsFlag,
			enableAPILogsFlag,
			enableMetricsFlag,
			pprofFlag,
			startFlag,
			verbosityFlag,
			jsonLogsFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(ctx *cli.Context) {
	lvl := log.Verbosity(ctx.Int(verbosityFlag.Name))
	if ctx.Bool(jsonLogsFlag.Name) {
		log.SetupJSON(os.Stderr, lvl)
	} else {
		log.Setup(os.Stderr, lvl, isatty.IsTerminal(os.Stderr.Fd()))
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)
	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	cfg, err := node.LoadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if dir := ctx.String(dataDirFlag.Name); dir != "" {
		cfg.DataPath = dir
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing node..."); n.Close() }()

	handler, apiCloser := api.New(n, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnablePprof:     ctx.Bool(pprofFlag.Name),
	})
	defer apiCloser()

	srv, srvErr, apiURL, err := startAPIServer(ctx.String(apiAddrFlag.Name), handler)
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("stopping API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startFamilies(runCtx, n, ctx.String(startFlag.Name)); err != nil {
		return err
	}
	printStartupMessage(cfg, n, apiURL)

	select {
	case err := <-srvErr:
		return err
	case <-runCtx.Done():
		logger.Info("shutting down...")
		return nil
	}
}

// startFamilies boots the families named by --start.
func startFamilies(ctx context.Context, n *node.Node, names string) error {
	switch names {
	case "none", "":
		return nil
	case "all":
		return n.StartAll(ctx)
	}
	for _, name := range strings.Split(names, ",") {
		if err := n.StartFamily(ctx, strings.TrimSpace(name)); err != nil {
			return err
		}
	}
	return nil
}

func startAPIServer(addr string, handler http.HandlerFunc) (*http.Server, <-chan error, string, error) {
	lsr, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, "", fmt.Errorf("listen API addr [%v]: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(lsr); err != http.ErrServerClosed {
			srvErr <- err
		}
	}()
	return srv, srvErr, "http://" + lsr.Addr().String() + "/", nil
}

func printStartupMessage(cfg *node.Config, n *node.Node, apiURL string) {
	dataPath := cfg.DataPath
	if dataPath == "" {
		dataPath = ":memory:"
	}
	fmt.Printf(`Starting %v
    Version     %v
    Data path   %v
    Families    %v
    API portal  %v
`,
		"indexd",
		fullVersion(),
		dataPath,
		strings.Join(n.Families(), ", "),
		apiURL)
}
