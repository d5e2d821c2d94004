// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// revan reconstructs Compton events from raw detector hits.
//
// Usage: revan [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> revan -geo ./cosi.yaml -cfg ./revan.yaml -o out.evta ./run_001.slcio
//	revan: events read:          1024
//	revan: events passed:         873
//	[...]
package main // import "github.com/go-lpc/revan/cmd/revan"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	mlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan"
	"github.com/go-lpc/revan/analyzer"
	"github.com/go-lpc/revan/conddb"
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/evio"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/stats"
	"github.com/sbinet/pmon"
	mail "gopkg.in/gomail.v2"
)

const usage = `revan reconstructs Compton events from raw detector hits.

Usage: revan [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Input files are .slcio (LCIO) or .evta (text) files, read in order.
The geometry is read from a YAML file (-geo) or from the conditions
database (-db, -geo-name).

Example:

 $> revan -geo ./cosi.yaml -cfg ./revan.yaml -o out.evta ./run_001.slcio
 revan: events read:          1024
 revan: events passed:         873
 [...]

Options:
`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("revan: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("revan", flag.ExitOnError)

		cfg     = fset.String("cfg", "", "path to reconstruction settings (YAML)")
		geo     = fset.String("geo", "", "path to geometry description (YAML)")
		db      = fset.String("db", "", "name of conditions database holding the geometry")
		geoName = fset.String("geo-name", "", "name of geometry in conditions database (default: latest)")
		oname   = fset.String("o", "", "path to output file of reconstructed events (.evta or .slcio)")
		hname   = fset.String("hist", "", "path to output YODA file of monitoring histograms")
		run     = fset.Int("run", 0, "run number of the output LCIO file")
		nprocs  = fset.Int("j", 1, "number of concurrent analyzers")
		verbose = fset.Bool("v", false, "enable verbose mode")
		doMon   = fset.Bool("pmon", false, "enable pmon monitoring")
		doFreq  = fset.Duration("freq", 1*time.Second, "pmon frequency")
		doMail  = fset.Bool("mail", false, "send end of run report by mail")
		doVers  = fset.Bool("version", false, "print version and exit")
	)

	fset.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	if *doVers {
		version, sum := revan.Version()
		fmt.Fprintf(w, "revan %s %s\n", version, sum)
		return
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := job{
		cfg:     *cfg,
		geo:     *geo,
		db:      *db,
		geoName: *geoName,
		oname:   *oname,
		hname:   *hname,
		run:     int32(*run),
		nprocs:  *nprocs,
		verbose: *verbose,
		inputs:  fset.Args(),
	}

	if *doMon {
		err = monitor(*doFreq)
		if err != nil {
			log.Fatalf("could not start monitoring: %+v", err)
		}
	}

	sum, err := job.process(ctx, w)
	if err != nil {
		log.Fatalf("could not reconstruct events: %+v", err)
	}

	if *doMail {
		sendReport(job.inputs, sum)
	}
}

type job struct {
	cfg     string
	geo     string
	db      string
	geoName string
	oname   string
	hname   string
	run     int32
	nprocs  int
	verbose bool
	inputs  []string
}

func (job job) process(ctx context.Context, w io.Writer) (stats.Statistics, error) {
	var sum stats.Statistics

	lvl := mlog.LvlInfo
	if job.verbose {
		lvl = mlog.LvlDebug
	}
	msg := mlog.NewMsgStream("revan", lvl, w)

	cfg := config.Default()
	if job.cfg != "" {
		v, err := config.Load(job.cfg)
		if err != nil {
			return sum, fmt.Errorf("could not load settings: %w", err)
		}
		cfg = v
	}

	geo, err := job.geometry(ctx)
	if err != nil {
		return sum, fmt.Errorf("could not load geometry: %w", err)
	}
	msg.Debugf("geometry %q: %d detectors", geo.Name, geo.Len())

	var sink evio.Sink
	if job.oname != "" {
		sink, err = evio.Create(job.oname, job.run)
		if err != nil {
			return sum, fmt.Errorf("could not create output file: %w", err)
		}
	}

	var hists *stats.Histos
	opts := []analyzer.Option{analyzer.WithLogger(msg)}
	if job.hname != "" {
		hists = stats.NewHistos()
		opts = append(opts, analyzer.WithHistos(hists))
	}

	src := newChain(job.inputs, msg)
	defer src.Close()

	start := time.Now()
	switch {
	case job.nprocs > 1:
		sum, err = analyzer.RunParallel(ctx, job.nprocs, src, sink, cfg, geo, opts...)
	default:
		opts = append(opts, analyzer.WithSource(src))
		if sink != nil {
			opts = append(opts, analyzer.WithSink(sink))
		}
		sum, err = analyze(ctx, analyzer.New(cfg, geo, opts...))
	}
	if err != nil {
		return sum, err
	}
	msg.Infof("processed %d events in %v", sum.Read, time.Since(start))

	if hists != nil {
		err = hists.Save(job.hname)
		if err != nil {
			return sum, fmt.Errorf("could not save histograms: %w", err)
		}
	}

	err = sum.Report(w)
	if err != nil {
		return sum, fmt.Errorf("could not write statistics report: %w", err)
	}

	return sum, nil
}

func (job job) geometry(ctx context.Context) (*geom.Geometry, error) {
	switch {
	case job.geo != "":
		return geom.Load(job.geo)
	case job.db != "":
		db, err := conddb.Open(job.db)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		name := job.geoName
		if name == "" {
			name, err = db.LastGeometry(ctx)
			if err != nil {
				return nil, err
			}
		}
		return db.Geometry(ctx, name)
	}
	return nil, fmt.Errorf("missing geometry (-geo or -db)")
}

// analyze runs a single analyzer over its whole source.
// Cancelling ctx interrupts the analysis.
func analyze(ctx context.Context, a *analyzer.Analyzer) (stats.Statistics, error) {
	defer a.Close()

	err := a.PreAnalysis()
	if err != nil {
		return a.Statistics(), err
	}

	if ctx.Err() != nil {
		a.Interrupt()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.Interrupt()
		case <-done:
		}
	}()

	for {
		status, err := a.AnalyzeEvent()
		if err != nil {
			return a.Statistics(), err
		}
		if status == analyzer.StatusNoMoreEvents {
			break
		}
	}

	err = a.PostAnalysis()
	if err != nil {
		return a.Statistics(), err
	}

	return a.Statistics(), a.Close()
}

// chain reads a list of event files one after the other.
type chain struct {
	fnames []string
	msg    mlog.MsgStream
	cur    evio.Source
}

func newChain(fnames []string, msg mlog.MsgStream) *chain {
	return &chain{fnames: fnames, msg: msg}
}

func (c *chain) Next() (*event.RawEvent, error) {
	for {
		if c.cur == nil {
			if len(c.fnames) == 0 {
				return nil, io.EOF
			}
			fname := c.fnames[0]
			c.fnames = c.fnames[1:]
			src, err := evio.Open(fname, c.msg)
			if err != nil {
				return nil, fmt.Errorf("could not open input file: %w", err)
			}
			c.msg.Debugf("reading %q...", fname)
			c.cur = src
		}

		evt, err := c.cur.Next()
		if errors.Is(err, io.EOF) {
			err = c.cur.Close()
			c.cur = nil
			if err != nil {
				return nil, fmt.Errorf("could not close input file: %w", err)
			}
			continue
		}
		return evt, err
	}
}

func (c *chain) Close() error {
	c.fnames = nil
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}

func monitor(freq time.Duration) error {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return fmt.Errorf("could not monitor pid=%d: %w", pid, err)
	}
	f, err := os.Create(fmt.Sprintf("revan-%d-pmon.log", pid))
	if err != nil {
		return fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		defer f.Close()
		log.Printf("run pmon (pid=%d)...", pid)
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()
	return nil
}

var (
	reportMailUsr  = os.Getenv("MAIL_USERNAME")
	reportMailPwd  = os.Getenv("MAIL_PASSWORD")
	reportMailSrv  = os.Getenv("MAIL_SERVER")
	reportMailPort = atoi(os.Getenv("MAIL_PORT"))
	reportMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func newReport(from string, tgts, inputs []string, sum stats.Statistics) *mail.Message {
	names := make([]string, len(inputs))
	for i, fname := range inputs {
		names[i] = filepath.Base(fname)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("Bcc", tgts...)
	msg.SetHeader("Subject", fmt.Sprintf(
		"[revan] run report: %d/%d good events", sum.Good, sum.Read,
	))
	msg.SetBody("text/plain", fmt.Sprintf("inputs: %s\n\n%v",
		strings.Join(names, ", "), sum,
	))
	return msg
}

func sendReport(inputs []string, sum stats.Statistics) {
	if reportMailUsr == "" || reportMailPwd == "" ||
		reportMailSrv == "" || reportMailPort == 0 ||
		len(reportMailTgts) == 0 || reportMailTgts[0] == "" {
		log.Printf("could not send mail report: missing credentials")
		return
	}

	msg := newReport(reportMailUsr, reportMailTgts, inputs, sum)
	dial := mail.NewDialer(reportMailSrv, reportMailPort, reportMailUsr, reportMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(msg)
	if err != nil {
		log.Printf("could not send mail report: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

var _ evio.Source = (*chain)(nil)
