// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// revan-view reconstructs the events of a file one at a time, from an
// interactive shell.
//
// Usage: revan-view [OPTIONS] FILE
//
// Example:
//
//	$> revan-view -geo ./cosi.yaml ./run_001.evta
//	revan> next
//	event 1: type=compton E=1000.000 keV quality=0.0123 reason=none
//	revan> print
//	=== event 1 ===
//	[...]
//	revan> quit
package main // import "github.com/go-lpc/revan/cmd/revan-view"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	mlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/revan/analyzer"
	"github.com/go-lpc/revan/config"
	"github.com/go-lpc/revan/event"
	"github.com/go-lpc/revan/evio"
	"github.com/go-lpc/revan/geom"
	"github.com/peterh/liner"
)

const usage = `revan-view reconstructs the events of a file one at a time, from an
interactive shell.

Usage: revan-view [OPTIONS] FILE

Example:

 $> revan-view -geo ./cosi.yaml ./run_001.evta
 revan> next
 event 1: type=compton E=1000.000 keV quality=0.0123 reason=none
 revan> print
 === event 1 ===
 [...]
 revan> quit

Options:
`

func main() {
	log.SetPrefix("revan-view: ")
	log.SetFlags(0)

	var (
		cfg = flag.String("cfg", "", "path to reconstruction settings (YAML)")
		geo = flag.String("geo", "", "path to geometry description (YAML)")
	)

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("missing path to input file")
	}

	v, err := newViewer(os.Stdout, *cfg, *geo, flag.Arg(0))
	if err != nil {
		log.Fatalf("could not create viewer: %+v", err)
	}
	defer v.close()

	err = v.loop()
	if err != nil {
		log.Fatalf("could not run viewer: %+v", err)
	}
}

type viewer struct {
	w   io.Writer
	ana *analyzer.Analyzer
	cur *event.RawEvent
	eof bool
}

func newViewer(w io.Writer, cname, gname, fname string) (*viewer, error) {
	cfg := config.Default()
	if cname != "" {
		v, err := config.Load(cname)
		if err != nil {
			return nil, fmt.Errorf("could not load settings: %w", err)
		}
		cfg = v
	}

	if gname == "" {
		return nil, fmt.Errorf("missing geometry file")
	}
	geo, err := geom.Load(gname)
	if err != nil {
		return nil, fmt.Errorf("could not load geometry: %w", err)
	}

	msg := mlog.NewMsgStream("revan-view", mlog.LvlWarning, w)
	src, err := evio.Open(fname, msg)
	if err != nil {
		return nil, fmt.Errorf("could not open input file: %w", err)
	}

	ana := analyzer.New(cfg, geo, analyzer.WithSource(src), analyzer.WithLogger(msg))
	err = ana.PreAnalysis()
	if err != nil {
		_ = ana.Close()
		return nil, err
	}

	return &viewer{w: w, ana: ana}, nil
}

func (v *viewer) close() error {
	return v.ana.Close()
}

func (v *viewer) loop() error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(complete)

	for {
		line, err := term.Prompt("revan> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		quit, err := v.exec(line)
		if err != nil {
			fmt.Fprintf(v.w, "error: %+v\n", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

var cmds = []struct {
	name string
	help string
}{
	{"next", "reconstruct the next event"},
	{"goto", "reconstruct events up to the given event ID"},
	{"print", "print the best interpretation of the current event"},
	{"optimum", "print the consistent interpretation of the current event, if any"},
	{"stats", "print the statistics of the events reconstructed so far"},
	{"help", "print this help message"},
	{"quit", "end the session"},
}

func complete(line string) []string {
	var out []string
	for _, cmd := range cmds {
		if strings.HasPrefix(cmd.name, line) {
			out = append(out, cmd.name)
		}
	}
	return out
}

// exec runs one shell command and reports whether the session is over.
func (v *viewer) exec(line string) (bool, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return false, nil
	}

	name := toks[0]
	for _, cmd := range cmds {
		if strings.HasPrefix(cmd.name, name) {
			name = cmd.name
			break
		}
	}

	switch name {
	case "next":
		return false, v.next(0)

	case "goto":
		if len(toks) != 2 {
			return false, fmt.Errorf("usage: goto ID")
		}
		id, err := strconv.ParseUint(toks[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid event ID %q: %w", toks[1], err)
		}
		return false, v.next(id)

	case "print":
		if v.cur == nil {
			return false, fmt.Errorf("no current event")
		}
		event.Fprint(v.w, v.cur)

	case "optimum":
		if v.cur == nil {
			return false, fmt.Errorf("no current event")
		}
		evt := v.ana.OptimumEvent()
		if evt == nil {
			fmt.Fprintf(v.w, "event %d: no consistent interpretation\n", v.cur.ID)
			return false, nil
		}
		event.Fprint(v.w, evt)

	case "stats":
		return false, v.ana.Statistics().Report(v.w)

	case "help":
		for _, cmd := range cmds {
			fmt.Fprintf(v.w, "  %-8s %s\n", cmd.name, cmd.help)
		}

	case "quit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q (try help)", toks[0])
	}
	return false, nil
}

// next reconstructs events until one with an ID of at least id is found.
func (v *viewer) next(id uint64) error {
	if v.eof {
		return io.EOF
	}
	for {
		status, err := v.ana.AnalyzeEvent()
		if err != nil {
			return err
		}
		switch status {
		case analyzer.StatusOK:
			evt := v.ana.BestTryEvent()
			if evt.ID < id {
				continue
			}
			v.cur = evt
			fmt.Fprintf(v.w, "event %d: type=%v E=%.3f keV quality=%g reason=%v\n",
				evt.ID, evt.Type, evt.Energy(), evt.Quality, evt.Reason,
			)
			return nil
		case analyzer.StatusNoMoreEvents:
			v.eof = true
			v.cur = nil
			return io.EOF
		}
	}
}
