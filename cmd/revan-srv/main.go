// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command revan-srv starts a TDAQ server reconstructing the raw events
// received on its /raw input and publishing them on its /rec output.
//
// The settings and geometry files given on the command line may be
// overridden by the body of the /config command.
package main // import "github.com/go-lpc/revan/cmd/revan-srv"

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var (
		cfg  = flag.String("cfg", "", "path to reconstruction settings (YAML)")
		geo  = flag.String("geo", "", "path to geometry description (YAML)")
		addr = flag.String("metrics", "", "[ip]:port to serve prometheus metrics on")
	)

	cmd := flags.New()

	reg := prometheus.NewRegistry()
	dev, err := newServer(*cfg, *geo, reg)
	if err != nil {
		log.Panicf("could not create server: %+v", err)
	}

	if *addr != "" {
		go serveMetrics(*addr, reg)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.InputHandle("/raw", dev.raw)
	srv.OutputHandle("/rec", dev.rec)

	srv.RunHandle(dev.run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	err := http.ListenAndServe(addr, metricsHandler(reg))
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("could not serve metrics on %q: %+v", addr, err)
	}
}
