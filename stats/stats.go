// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats accumulates the statistics of an event reconstruction run.
package stats // import "github.com/go-lpc/revan/stats"

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-lpc/revan/event"
)

// Statistics holds the counters of one analyzer.
//
// Statistics of independent analyzers are combined with Merge.
type Statistics struct {
	Read   uint64 // events read from the input
	Passed uint64 // events which passed every selection cut
	Good   uint64 // events with a consistent interpretation
	Bad    uint64 // rejected events

	// Types counts events per type. Events rejected before the Compton
	// sequencing (too many hits, selection cuts) stay Unknown; events
	// with no consistent ordering of their sites are Unidentifiable.
	Types   [event.NTypes]uint64
	Reasons [event.NReasons]uint64
}

// Record accounts for a fully processed event.
func (s *Statistics) Record(evt *event.RawEvent) {
	if int(evt.Type) < len(s.Types) {
		s.Types[evt.Type]++
	}
	if evt.Rejected() {
		s.Bad++
		if int(evt.Reason) < len(s.Reasons) {
			s.Reasons[evt.Reason]++
		}
		return
	}
	s.Passed++
	if evt.Good() {
		s.Good++
	}
}

// Merge adds the counters of o to s.
func (s *Statistics) Merge(o Statistics) {
	s.Read += o.Read
	s.Passed += o.Passed
	s.Good += o.Good
	s.Bad += o.Bad
	for i, v := range o.Types {
		s.Types[i] += v
	}
	for i, v := range o.Reasons {
		s.Reasons[i] += v
	}
}

// Report writes a human readable summary of the counters to w.
func (s Statistics) Report(w io.Writer) error {
	o := new(strings.Builder)
	fmt.Fprintf(o, "events read:   %10d\n", s.Read)
	fmt.Fprintf(o, "events passed: %10d\n", s.Passed)
	fmt.Fprintf(o, "events good:   %10d\n", s.Good)
	fmt.Fprintf(o, "events bad:    %10d\n", s.Bad)

	fmt.Fprintf(o, "event types:\n")
	for i, v := range s.Types {
		if v == 0 {
			continue
		}
		fmt.Fprintf(o, "  %-24s %10d\n", event.Type(i), v)
	}

	fmt.Fprintf(o, "rejection reasons:\n")
	for i, v := range s.Reasons {
		if v == 0 || event.Reason(i) == event.ReasonNone {
			continue
		}
		fmt.Fprintf(o, "  %-24s %10d\n", event.Reason(i), v)
	}

	_, err := io.WriteString(w, o.String())
	if err != nil {
		return fmt.Errorf("stats: could not write report: %w", err)
	}
	return nil
}

func (s Statistics) String() string {
	o := new(strings.Builder)
	_ = s.Report(o)
	return o.String()
}
