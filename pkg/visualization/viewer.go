// Package visualization reads and writes slice stacks and renders diagnostic
// views of soil-column volumes and correction results.
package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"soilct/internal/models"
)

// Viewer extracts orthogonal sections and sub-volumes from a volume
type Viewer struct {
	vol *models.Volume
}

// NewViewer creates a viewer over vol. The volume is not copied.
func NewViewer(vol *models.Volume) *Viewer {
	return &Viewer{vol: vol}
}

// ExtractSlice extracts a 2D section of the volume along the specified axis.
// "z" returns plane position in its native bit depth; "x" and "y" return
// depth × height and width × depth sections.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.vol

	var (
		w, h int
		at   func(i, j int) uint16
	)
	switch axis {
	case "x", "X":
		// YZ plane, depth runs left to right
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		w, h = vol.Depth(), vol.Height
		at = func(z, y int) uint16 { return vol.At(position, y, z) }

	case "y", "Y":
		// XZ plane, depth runs top to bottom
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		w, h = vol.Width, vol.Depth()
		at = func(x, z int) uint16 { return vol.At(x, position, z) }

	case "z", "Z":
		if position >= vol.Depth() {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth())
		}
		return vol.PlaneImage(position), nil

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	rect := image.Rect(0, 0, w, h)
	if vol.BitDepth == 8 {
		img := image.NewGray(rect)
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				img.Pix[j*img.Stride+i] = uint8(at(i, j))
			}
		}
		return img, nil
	}
	img := image.NewGray16(rect)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			val := at(i, j)
			img.Pix[j*img.Stride+2*i] = uint8(val >> 8)
			img.Pix[j*img.Stride+2*i+1] = uint8(val)
		}
	}
	return img, nil
}

// Region is a box of voxels: origin X, Y, Z and size Width, Height, Depth
type Region struct {
	X, Y, Z              int
	Width, Height, Depth int
}

// ParseRegion parses a region given as "x,y,z,width,height,depth"
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return Region{}, fmt.Errorf("region must have 6 comma-separated values, got %d", len(parts))
	}
	var v [6]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Region{}, fmt.Errorf("invalid region value %q: %w", part, err)
		}
		v[i] = n
	}
	return Region{X: v[0], Y: v[1], Z: v[2], Width: v[3], Height: v[4], Depth: v[5]}, nil
}

// Extract extracts region r of the viewed volume
func (v *Viewer) Extract(r Region) (*models.Volume, error) {
	return v.ExtractRegion(r.X, r.Y, r.Z, r.Width, r.Height, r.Depth)
}

// ExtractRegion extracts a sub-volume
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*models.Volume, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > v.vol.Width || startY+sizeY > v.vol.Height || startZ+sizeZ > v.vol.Depth() {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := models.NewVolume(sizeX, sizeY, sizeZ, v.vol.BitDepth)
	region.VoxelSize = v.vol.VoxelSize
	for z := 0; z < sizeZ; z++ {
		src := v.vol.Planes[startZ+z]
		dst := region.Planes[z]
		for y := 0; y < sizeY; y++ {
			from := (startY+y)*v.vol.Width + startX
			copy(dst[y*sizeX:(y+1)*sizeX], src[from:from+sizeX])
		}
	}
	return region, nil
}

// SaveSlice saves an extracted slice. Files ending in .tif or .tiff are
// written as TIFF, anything else as PNG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if isTIFF(filename) {
		return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Width
	case "y", "Y":
		maxPos = v.vol.Height
	case "z", "Z":
		maxPos = v.vol.Depth()
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%04d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

func isTIFF(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".tif" || ext == ".tiff"
}
