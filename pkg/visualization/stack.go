package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/image/tiff"

	"soilct/internal/models"
)

// LoadStack reads every .tif/.tiff file of dir as one depth slice. Files are
// ordered by the number embedded in their name, ties by name. 8-bit gray
// slices produce an 8-bit volume, everything else a 16-bit one.
func LoadStack(dir string) (*models.Volume, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read slice directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isTIFF(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("no TIFF slices found in %s", dir)
	}
	SortSliceNames(names)

	slices := make([]models.Slice, len(names))
	for i, name := range names {
		img, err := loadTIFF(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load slice %s: %w", name, err)
		}
		slices[i] = models.Slice{Image: img, Index: i, Filename: name}
	}

	vol, err := models.FromSlices(slices)
	if err != nil {
		return nil, nil, err
	}
	return vol, names, nil
}

// SaveStack writes every plane of vol as a TIFF file in its native bit depth.
// names, when it has one entry per plane, provides the file names; otherwise
// the planes are numbered.
func SaveStack(dir string, vol *models.Volume, names []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if len(names) != vol.Depth() {
		names = make([]string, vol.Depth())
		for z := range names {
			names[z] = fmt.Sprintf("slice_%04d.tif", z)
		}
	}

	for z, name := range names {
		if err := saveTIFF(filepath.Join(dir, name), vol, z); err != nil {
			return fmt.Errorf("failed to save slice %s: %w", name, err)
		}
	}
	return nil
}

// SortSliceNames orders file names by their embedded slice number
func SortSliceNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}

// extractNumber returns the last run of digits in the base name, or 0
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	base = base[:len(base)-len(filepath.Ext(base))]

	end := -1
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] >= '0' && base[i] <= '9' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return 0
	}
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	num, err := strconv.Atoi(base[start:end])
	if err != nil {
		return 0
	}
	return num
}

func loadTIFF(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := tiff.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func saveTIFF(path string, vol *models.Volume, z int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tiff.Encode(file, vol.PlaneImage(z), nil); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
