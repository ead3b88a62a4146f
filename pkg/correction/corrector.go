package correction

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"soilct/internal/models"
	"soilct/pkg/geometry"
)

// denominators smaller than this leave the voxel uncorrected
const factorEpsilon = 1e-9

// Params controls the pixel correction
type Params struct {
	// AnglesChecked is the number of wall polygon vertices per slice
	AnglesChecked int

	// NumWorkers bounds the number of slices corrected concurrently
	NumWorkers int
}

// DefaultParams returns the correction defaults
func DefaultParams() Params {
	return Params{
		AnglesChecked: 72,
		NumWorkers:    runtime.NumCPU(),
	}
}

// Factors holds the per-radius correction factors of one slice
type Factors struct {
	// Reference is the matrix brightness at the wall
	Reference float64

	// Beam is the beam-hardening factor ref/map(r)
	Beam []float64

	// Gamma is the air-phase gamma factor (ref-gammaRef)/(ref-gamma(r))
	Gamma []float64
}

// SliceFactors derives the correction factors of slice z from both maps.
// Both factors are 1 at the wall.
func SliceFactors(matrixMap, gammaMap *Map, z int) Factors {
	ref := matrixMap.Reference(z)
	gammaRef := gammaMap.Reference(z)
	f := Factors{
		Reference: ref,
		Beam:      make([]float64, matrixMap.Width()),
		Gamma:     make([]float64, matrixMap.Width()),
	}
	for r := range f.Beam {
		f.Beam[r] = ratio(ref, matrixMap.At(r, z))
		f.Gamma[r] = ratio(ref-gammaRef, ref-gammaMap.At(r, z))
	}
	last := len(f.Beam) - 1
	f.Beam[last], f.Gamma[last] = 1, 1
	return f
}

func ratio(num, den float64) float64 {
	if math.Abs(den) < factorEpsilon {
		return 1
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return v
}

// Apply returns the corrected value of a voxel of brightness gray at radius
// bucket r of the standard radius axis.
func (f Factors) Apply(gray float64, r int) float64 {
	corrected := math.Round(f.Beam[r] * gray)
	return f.Reference - (f.Reference-corrected)*f.Gamma[r]
}

// Correct returns a beam-hardening and air-phase-gamma corrected copy of vol.
// Each voxel inside the wall is mapped to the standard radius axis by its
// distance from the wall centre relative to the wall radius in its direction.
// Voxels outside the wall, zero voxels and slices without wall geometry are
// copied unchanged. vol is never modified; on error no volume is returned.
func Correct(ctx context.Context, vol *models.Volume, col *geometry.Column, matrixMap, gammaMap *Map, p Params) (*models.Volume, error) {
	if vol.Depth() != col.Height() {
		return nil, fmt.Errorf("volume has %d slices but geometry has %d", vol.Depth(), col.Height())
	}
	if matrixMap.Height() != vol.Depth() || gammaMap.Height() != vol.Depth() {
		return nil, fmt.Errorf("maps cover %d and %d slices, volume has %d",
			matrixMap.Height(), gammaMap.Height(), vol.Depth())
	}
	if matrixMap.Width() != gammaMap.Width() || matrixMap.Width() < 1 {
		return nil, fmt.Errorf("map widths %d and %d do not match", matrixMap.Width(), gammaMap.Width())
	}

	out := vol.Clone()
	n := p.NumWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for z := 0; z < vol.Depth(); z++ {
		z := z // per-iteration copy (Go <1.22 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			correctSlice(out, col.Slice(z), SliceFactors(matrixMap, gammaMap, z), p.AnglesChecked)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// correctSlice rewrites plane sg.Z of vol in place
func correctSlice(vol *models.Volume, sg geometry.SliceGeometry, f Factors, angles int) {
	if sg.Degenerate() {
		opsf("slice %d: no wall geometry, left uncorrected", sg.Z)
		return
	}
	lut := geometry.NewWallLUT(sg.Wall(), angles)
	R := len(f.Beam)
	plane := vol.Planes[sg.Z]
	maxValue := vol.MaxValue()

	changed := 0
	for y := 0; y < vol.Height; y++ {
		for x := 0; x < vol.Width; x++ {
			i := y*vol.Width + x
			gray := plane[i]
			if gray == 0 {
				continue
			}
			dist, alpha := lut.Polar(float64(x), float64(y))
			wall := lut.RadiusAt(alpha)
			if dist >= wall {
				continue
			}
			r := int(dist / wall * float64(R))
			if r >= R {
				r = R - 1
			}
			v := math.Round(f.Apply(float64(gray), r))
			plane[i] = uint16(math.Max(0, math.Min(maxValue, v)))
			changed++
		}
	}
	tracef("slice %d: corrected %d voxels against reference %.1f", sg.Z, changed, f.Reference)
}
