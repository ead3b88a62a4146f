package models

import (
	"errors"
	"fmt"
	"image"
)

// ErrDimensionMismatch is returned when slices of a volume disagree on their size.
var ErrDimensionMismatch = errors.New("slice dimensions do not match volume")

// Slice represents a single CT cross-section loaded from disk
type Slice struct {
	// Image is the actual slice image data
	Image image.Image

	// Index is the position of this slice in the sequence
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Volume represents a 3D CT volume as a stack of 2D planes, one per depth index.
// Intensities are kept in their native integer type; BitDepth records whether
// the source was 8-bit or 16-bit so the corrected volume can be written back
// the same way.
type Volume struct {
	// Planes holds one row-major plane per depth index
	Planes [][]uint16

	// Width and Height are the dimensions of each plane in voxels
	Width  int
	Height int

	// BitDepth is 8 or 16
	BitDepth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume
func NewVolume(width, height, depth, bitDepth int) *Volume {
	v := &Volume{
		Planes:   make([][]uint16, depth),
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
	}
	for z := range v.Planes {
		v.Planes[z] = make([]uint16, width*height)
	}
	return v
}

// Depth returns the number of planes in the volume
func (v *Volume) Depth() int {
	return len(v.Planes)
}

// At returns the intensity at (x, y, z)
func (v *Volume) At(x, y, z int) uint16 {
	return v.Planes[z][y*v.Width+x]
}

// Set writes the intensity at (x, y, z)
func (v *Volume) Set(x, y, z int, value uint16) {
	v.Planes[z][y*v.Width+x] = value
}

// MaxValue is the largest intensity representable in the volume's native type
func (v *Volume) MaxValue() float64 {
	if v.BitDepth == 8 {
		return 255
	}
	return 65535
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Planes:    make([][]uint16, len(v.Planes)),
		Width:     v.Width,
		Height:    v.Height,
		BitDepth:  v.BitDepth,
		VoxelSize: v.VoxelSize,
	}
	for z, plane := range v.Planes {
		out.Planes[z] = append([]uint16(nil), plane...)
	}
	return out
}

// Validate checks that every plane has Width*Height voxels and that the bit
// depth is one of the supported native types.
func (v *Volume) Validate() error {
	if v.BitDepth != 8 && v.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth %d", v.BitDepth)
	}
	if v.Width <= 0 || v.Height <= 0 || len(v.Planes) == 0 {
		return fmt.Errorf("empty volume %dx%dx%d", v.Width, v.Height, len(v.Planes))
	}
	for z, plane := range v.Planes {
		if len(plane) != v.Width*v.Height {
			return fmt.Errorf("plane %d has %d voxels, want %d: %w",
				z, len(plane), v.Width*v.Height, ErrDimensionMismatch)
		}
	}
	return nil
}

// FromSlices builds a volume from loaded slice images. All images must share
// the size of the first one. Gray images are stored as 8-bit, everything else
// through its 16-bit gray conversion.
func FromSlices(slices []Slice) (*Volume, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("no slices to assemble")
	}

	bounds := slices[0].Image.Bounds()
	bitDepth := 16
	if _, ok := slices[0].Image.(*image.Gray); ok {
		bitDepth = 8
	}

	v := NewVolume(bounds.Dx(), bounds.Dy(), len(slices), bitDepth)
	for z, s := range slices {
		b := s.Image.Bounds()
		if b.Dx() != v.Width || b.Dy() != v.Height {
			return nil, fmt.Errorf("slice %s is %dx%d, want %dx%d: %w",
				s.Filename, b.Dx(), b.Dy(), v.Width, v.Height, ErrDimensionMismatch)
		}
		plane := v.Planes[z]
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				switch img := s.Image.(type) {
				case *image.Gray16:
					plane[y*v.Width+x] = img.Gray16At(b.Min.X+x, b.Min.Y+y).Y
				case *image.Gray:
					plane[y*v.Width+x] = uint16(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
				default:
					r, g, bl, _ := s.Image.At(b.Min.X+x, b.Min.Y+y).RGBA()
					// Rec. 601 luma, same weights as color.Gray16Model
					plane[y*v.Width+x] = uint16((19595*r + 38470*g + 7471*bl + 1<<15) >> 16)
				}
			}
		}
	}
	return v, nil
}

// PlaneImage returns plane z as an image in the volume's native type
func (v *Volume) PlaneImage(z int) image.Image {
	rect := image.Rect(0, 0, v.Width, v.Height)
	plane := v.Planes[z]
	if v.BitDepth == 8 {
		img := image.NewGray(rect)
		for i, val := range plane {
			img.Pix[i] = uint8(val)
		}
		return img
	}
	img := image.NewGray16(rect)
	for i, val := range plane {
		img.Pix[2*i] = uint8(val >> 8)
		img.Pix[2*i+1] = uint8(val)
	}
	return img
}
