package radial

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"soilct/internal/models"
	"soilct/pkg/geometry"
)

// ErrNoWall is returned when no slice of the geometry has a usable wall.
var ErrNoWall = errors.New("geometry has no usable wall radius")

// Params controls radial sampling
type Params struct {
	// AnglesChecked is the number of rays cast per slice
	AnglesChecked int

	// RadialStep is the sampling step along a ray, as a fraction of one
	// standard-radius voxel
	RadialStep float64

	// CenterCutoff is the fraction of the radius near the centre that is
	// excluded from curve fitting
	CenterCutoff float64

	// Skip is the number of radius buckets next to the wall excluded from fitting
	Skip int

	// AirPhaseClassMemberMinimum is the number of samples a brightness value
	// must exceed to count as the air-phase minimum
	AirPhaseClassMemberMinimum float64

	// MaskingThreshold excludes samples darker than it from the matrix mode.
	// MaskingThresholds, when set, overrides it per depth slice.
	MaskingThreshold  float64
	MaskingThresholds []float64

	// NumWorkers bounds the number of slices sampled concurrently
	NumWorkers int
}

// DefaultParams returns the sampling defaults
func DefaultParams() Params {
	return Params{
		AnglesChecked:              72,
		RadialStep:                 0.05,
		CenterCutoff:               0.2,
		Skip:                       2,
		AirPhaseClassMemberMinimum: 2,
		NumWorkers:                 runtime.NumCPU(),
	}
}

// Sample builds the radial mode and minimum profiles of every depth slice of
// vol. Slices are processed concurrently; each worker only holds the samples
// of the slice it is working on.
func Sample(ctx context.Context, vol *models.Volume, col *geometry.Column, p Params) (*Modes, error) {
	if vol.Depth() != col.Height() {
		return nil, fmt.Errorf("volume has %d slices but geometry has %d", vol.Depth(), col.Height())
	}
	if p.AnglesChecked <= 0 || p.RadialStep <= 0 || p.RadialStep > 1 {
		return nil, fmt.Errorf("invalid sampling parameters: %d angles, step %g", p.AnglesChecked, p.RadialStep)
	}

	standardRadius := int(math.Round(col.MaxWallRadius()))
	if standardRadius < 1 {
		return nil, ErrNoWall
	}

	modes := NewModes(vol.Depth(), standardRadius)
	modes.FitFrom = int(math.Ceil(p.CenterCutoff * float64(standardRadius)))
	modes.FitTo = standardRadius - p.Skip
	if modes.FitTo-modes.FitFrom < 6 {
		// too few buckets left to constrain the logistic, use the whole profile
		modes.FitFrom, modes.FitTo = 0, standardRadius
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(p.NumWorkers))
	for z := 0; z < vol.Depth(); z++ {
		z := z // per-iteration copy (Go <1.22 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sampleSlice(vol, col.Slice(z), modes, z, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	valid := 0
	for _, ok := range modes.Valid {
		if ok {
			valid++
		}
	}
	diagf("sampled %d/%d slices, standard radius %d, fit window [%d,%d)",
		valid, vol.Depth(), standardRadius, modes.FitFrom, modes.FitTo)
	if valid == 0 {
		return nil, ErrNoWall
	}
	return modes, nil
}

// sampleSlice fills row z of modes. Each worker writes only its own row.
func sampleSlice(vol *models.Volume, sg geometry.SliceGeometry, modes *Modes, z int, p Params) {
	threshold := p.MaskingThreshold
	if z < len(p.MaskingThresholds) {
		threshold = p.MaskingThresholds[z]
	}
	modes.MaskingThreshold[z] = threshold

	if sg.Degenerate() {
		opsf("slice %d: degenerate wall geometry, no radial samples", z)
		return
	}

	R := modes.StandardRadius
	lut := geometry.NewWallLUT(sg.Wall(), p.AnglesChecked)
	plane := vol.Planes[z]
	buckets := make([][]float64, R)

	spacing := 2 * math.Pi / float64(p.AnglesChecked)
	for a := 0; a < p.AnglesChecked; a++ {
		angle := float64(a) * spacing
		wall := lut.RadiusAt(angle)
		cos, sin := math.Cos(angle), math.Sin(angle)
		for k := 0; ; k++ {
			s := (float64(k) + 0.5) * p.RadialStep
			if s >= float64(R) {
				break
			}
			d := s / float64(R) * wall
			x := int(math.Round(lut.CX + d*cos))
			y := int(math.Round(lut.CY + d*sin))
			if x < 0 || y < 0 || x >= vol.Width || y >= vol.Height {
				continue
			}
			v := plane[y*vol.Width+x]
			if v == 0 {
				continue
			}
			b := int(s)
			if b >= R {
				b = R - 1
			}
			buckets[b] = append(buckets[b], float64(v))
		}
	}

	modeRow := modes.MaskedRadialModes[z]
	minRow := modes.MaskedRadialMinima[z]
	for b, samples := range buckets {
		if len(samples) == 0 {
			continue
		}
		sort.Float64s(samples)
		modeRow[b] = maskedMode(samples, threshold)
		minRow[b] = classMinimum(samples, p.AirPhaseClassMemberMinimum)
	}

	okModes := clampEmpty(modeRow)
	okMinima := clampEmpty(minRow)
	modes.Valid[z] = okModes && okMinima
	if !modes.Valid[z] {
		opsf("slice %d: no samples inside the wall", z)
		return
	}
	tracef("slice %d: wall mode %.1f, wall minimum %.1f", z, modeRow[R-1], minRow[R-1])
}

// maskedMode returns the most frequent value among sorted samples at or above
// threshold, NaN when none qualify.
func maskedMode(sorted []float64, threshold float64) float64 {
	i := sort.SearchFloat64s(sorted, threshold)
	if i >= len(sorted) {
		return math.NaN()
	}
	mode, _ := stat.Mode(sorted[i:], nil)
	return mode
}

// classMinimum returns the smallest value of sorted samples that occurs more
// than minMembers times. Falls back to the smallest sample.
func classMinimum(sorted []float64, minMembers float64) float64 {
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if float64(j-i) > minMembers {
			return sorted[i]
		}
		i = j
	}
	return sorted[0]
}

// clampEmpty replaces undefined buckets with the last valid bucket inward of
// them; leading undefined buckets take the first valid one. Reports whether
// any bucket was defined.
func clampEmpty(row []float64) bool {
	first := -1
	for i, v := range row {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first < 0 {
		return false
	}
	for i := 0; i < first; i++ {
		row[i] = row[first]
	}
	for i := first + 1; i < len(row); i++ {
		if math.IsNaN(row[i]) {
			row[i] = row[i-1]
		}
	}
	return true
}

func workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
