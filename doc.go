// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package revan reconstructs raw events recorded by Compton and pair
// gamma-ray telescopes.
//
// A raw event (a set of detector hits with position, energy and time) flows
// through a pipeline of stages: coincidence search, hit clustering, electron
// tracking and Compton sequence reconstruction, followed by event selection.
// The pipeline is driven by the analyzer package; each stage lives in its own
// package (coinc, cluster, track, csr) and selects its algorithm once, from
// the settings held by the config package.
package revan // import "github.com/go-lpc/revan"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of revan and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	const root = "github.com/go-lpc/revan"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace != nil {
			switch {
			case m.Replace.Version != "" && m.Replace.Path != "":
				return fmt.Sprintf("%s %s", m.Replace.Path, m.Replace.Version), m.Replace.Sum
			case m.Replace.Version != "":
				return m.Replace.Version, m.Replace.Sum
			case m.Replace.Path != "":
				return m.Replace.Path, m.Replace.Sum
			default:
				return m.Version + "*", ""
			}
		}
		return m.Version, m.Sum
	}
	return "", ""
}
