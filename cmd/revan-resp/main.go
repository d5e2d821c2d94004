// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// revan-resp creates default response files for the PDF clustering, the
// Bayesian electron tracking and the Bayesian Compton sequencing, or lists
// the content of existing ones.
//
// Usage: revan-resp [OPTIONS] [FILE1 [FILE2 ...]]
//
// Example:
//
//	$> revan-resp -o resp.yoda
//	$> revan-resp resp.yoda
//	=== resp.yoda ===
//	cluster/pdf/anger-camera      bins=  50 range=[0, 5] entries=50
//	[...]
package main // import "github.com/go-lpc/revan/cmd/revan-resp"

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/go-lpc/revan/cluster"
	"github.com/go-lpc/revan/csr"
	"github.com/go-lpc/revan/geom"
	"github.com/go-lpc/revan/internal/response"
	"github.com/go-lpc/revan/track"
	"go-hep.org/x/hep/hbook"
)

const usage = `revan-resp creates default response files for the PDF clustering, the
Bayesian electron tracking and the Bayesian Compton sequencing, or lists
the content of existing ones.

Usage: revan-resp [OPTIONS] [FILE1 [FILE2 ...]]

Example:

 $> revan-resp -o resp.yoda
 $> revan-resp resp.yoda
 === resp.yoda ===
 cluster/pdf/anger-camera      bins=  50 range=[0, 5] entries=50
 [...]

Options:
`

func main() {
	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	log.SetPrefix("revan-resp: ")
	log.SetFlags(0)

	var (
		fset = flag.NewFlagSet("revan-resp", flag.ExitOnError)

		oname = fset.String("o", "", "path to output response file")
		opts  = defaults()
	)

	fset.IntVar(&opts.nbins, "bins", opts.nbins, "number of bins of each histogram")
	fset.Float64Var(&opts.dmax, "dmax", opts.dmax, "maximal hit distance (cm) of the clustering PDFs")
	fset.Float64Var(&opts.scale, "scale", opts.scale, "decay length (cm) of the clustering PDFs")
	fset.Float64Var(&opts.angle, "angle", opts.angle, "mean scatter angle (rad) along correctly ordered tracks")
	fset.Float64Var(&opts.sigma, "sigma", opts.sigma, "width of the cosine difference of correctly ordered sequences")

	fset.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse input arguments: %+v", err)
	}

	switch {
	case *oname != "":
		err = create(*oname, opts)
		if err != nil {
			log.Fatalf("could not create response file: %+v", err)
		}
	case fset.NArg() > 0:
		for _, fname := range fset.Args() {
			err = list(w, fname)
			if err != nil {
				log.Fatalf("could not list response file %q: %+v", fname, err)
			}
		}
	default:
		fset.Usage()
		log.Fatalf("missing output or input response file")
	}
}

type options struct {
	nbins int
	dmax  float64
	scale float64
	angle float64
	sigma float64
}

func defaults() options {
	return options{
		nbins: 50,
		dmax:  5,
		scale: 0.5,
		angle: 0.5,
		sigma: 0.1,
	}
}

func (opts options) validate() error {
	switch {
	case opts.nbins <= 0:
		return fmt.Errorf("invalid number of bins %d", opts.nbins)
	case opts.dmax <= 0:
		return fmt.Errorf("invalid maximal distance %v", opts.dmax)
	case opts.scale <= 0:
		return fmt.Errorf("invalid decay length %v", opts.scale)
	case opts.angle <= 0:
		return fmt.Errorf("invalid mean scatter angle %v", opts.angle)
	case opts.sigma <= 0:
		return fmt.Errorf("invalid cosine difference width %v", opts.sigma)
	}
	return nil
}

// fill fills each bin of h with f evaluated at the bin center.
func fill(h *hbook.H1D, f func(x float64) float64) *hbook.H1D {
	var (
		n     = h.Len()
		xmin  = h.XMin()
		width = (h.XMax() - xmin) / float64(n)
	)
	for i := 0; i < n; i++ {
		x := xmin + (float64(i)+0.5)*width
		h.Fill(x, f(x))
	}
	return h
}

func flat(float64) float64 { return 1 }

// histos returns the default response histograms:
//   - clustering: merge probability decaying exponentially with the distance,
//   - tracking: exponential scatter angles for correctly ordered tracks,
//     flat otherwise,
//   - sequencing: gaussian cosine differences for correctly ordered
//     sequences, flat otherwise, and flat first-site energy fractions.
func histos(opts options) []*hbook.H1D {
	var hs []*hbook.H1D
	for _, t := range geom.Types() {
		h := response.New(cluster.PDFPrefix+t.String(), opts.nbins, 0, opts.dmax)
		hs = append(hs, fill(h, func(d float64) float64 {
			return math.Exp(-d / opts.scale)
		}))
	}

	hs = append(hs,
		fill(response.New(track.AngleGood, opts.nbins, 0, math.Pi), func(x float64) float64 {
			return math.Exp(-x / opts.angle)
		}),
		fill(response.New(track.AngleBad, opts.nbins, 0, math.Pi), flat),
		fill(response.New(csr.DCosGood, opts.nbins, -2, 2), func(x float64) float64 {
			return math.Exp(-0.5 * (x / opts.sigma) * (x / opts.sigma))
		}),
		fill(response.New(csr.DCosBad, opts.nbins, -2, 2), flat),
		fill(response.New(csr.EFracGood, opts.nbins, 0, 1), flat),
		fill(response.New(csr.EFracBad, opts.nbins, 0, 1), flat),
	)
	return hs
}

func create(fname string, opts options) error {
	err := opts.validate()
	if err != nil {
		return err
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = response.Write(w, histos(opts)...)
	if err != nil {
		return err
	}

	err = w.Flush()
	if err != nil {
		return fmt.Errorf("could not flush output file: %w", err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close output file: %w", err)
	}
	return nil
}

func list(w io.Writer, fname string) error {
	f, err := response.Open(fname)
	if err != nil {
		return err
	}

	o := bufio.NewWriter(w)
	defer o.Flush()

	fmt.Fprintf(o, "=== %s ===\n", fname)
	for _, name := range f.Names() {
		h, _ := f.H1D(name)
		fmt.Fprintf(o, "%-30s bins=%4d range=[%g, %g] entries=%d\n",
			name, h.Len(), h.XMin(), h.XMax(), h.Entries(),
		)
	}
	return o.Flush()
}
