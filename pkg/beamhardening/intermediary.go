package beamhardening

import (
	"fmt"
	"os"
	"path/filepath"

	"soilct/internal/models"
	"soilct/pkg/visualization"
)

// Intermediary result stages, one sub-directory each
const (
	StageMatrixProfiles   = "01_matrix_profiles"
	StageAirPhaseProfiles = "02_air_phase_profiles"
	StageMaps             = "03_maps"
	StageCorrectedSlices  = "04_corrected_slices"
)

// saveIntermediaryResults writes profile plots of the top, middle and bottom
// slice, both maps and the matching raw and corrected slices. Failures are
// logged and do not abort the run.
func (c *Corrector) saveIntermediaryResults(vol, out *models.Volume, report *Report) {
	samples := sampleSlices(vol.Depth())

	for _, z := range samples {
		name := fmt.Sprintf("profile_%04d.png", z)
		if err := c.saveIntermediaryResult(StageMatrixProfiles, name, func(path string) error {
			return visualization.SaveProfilePlot(path, report.Modes, report.MatrixFit, nil, z)
		}); err != nil {
			c.warn("Failed to save matrix profile of slice %d: %v", z, err)
		}
		if err := c.saveIntermediaryResult(StageAirPhaseProfiles, name, func(path string) error {
			return visualization.SaveProfilePlot(path, report.AirPhaseModes, nil, report.GammaFit, z)
		}); err != nil {
			c.warn("Failed to save air-phase profile of slice %d: %v", z, err)
		}
	}

	if err := c.saveIntermediaryResult(StageMaps, "beam_hardening_map.png", func(path string) error {
		return visualization.SaveMapImage(path, report.MatrixMap)
	}); err != nil {
		c.warn("Failed to save beam-hardening map: %v", err)
	}
	if err := c.saveIntermediaryResult(StageMaps, "gamma_map.png", func(path string) error {
		return visualization.SaveMapImage(path, report.GammaMap)
	}); err != nil {
		c.warn("Failed to save gamma map: %v", err)
	}

	before, after := visualization.NewViewer(vol), visualization.NewViewer(out)
	for _, z := range samples {
		for _, v := range []struct {
			viewer *visualization.Viewer
			suffix string
		}{{before, "raw"}, {after, "corrected"}} {
			name := fmt.Sprintf("slice_%04d_%s.png", z, v.suffix)
			if err := c.saveIntermediaryResult(StageCorrectedSlices, name, func(path string) error {
				img, err := v.viewer.ExtractSlice("z", z)
				if err != nil {
					return err
				}
				return v.viewer.SaveSlice(img, path)
			}); err != nil {
				c.warn("Failed to save %s slice %d: %v", v.suffix, z, err)
			}
		}
	}
}

// saveIntermediaryResult creates the stage directory and hands the output
// path to save
func (c *Corrector) saveIntermediaryResult(stage, name string, save func(path string) error) error {
	dir := filepath.Join(c.params.IntermediaryDir, stage)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return save(filepath.Join(dir, name))
}

func (c *Corrector) warn(format string, args ...interface{}) {
	opsf(format, args...)
	c.progress("Warning: "+format, args...)
}

// sampleSlices returns the distinct top, middle and bottom slice indices
func sampleSlices(depth int) []int {
	var out []int
	for _, z := range []int{0, depth / 2, depth - 1} {
		if len(out) == 0 || out[len(out)-1] != z {
			out = append(out, z)
		}
	}
	return out
}
