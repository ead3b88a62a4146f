package geometry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Gauge file layout versions
const (
	Version0 = 0
	Version1 = 1
)

var (
	// ErrMalformedRow is returned when a gauge file line cannot be parsed.
	ErrMalformedRow = errors.New("malformed gauge file row")

	// ErrUnknownVersion is returned when asked to write an unsupported layout.
	ErrUnknownVersion = errors.New("unknown gauge file version")
)

const (
	ver0Fields = 14
	ver1Fields = 15
)

// DetectVersion inspects the first header line of a gauge file. Version 1
// files start with the "heightOfColumn" header.
func DetectVersion(header string) int {
	h := strings.TrimSpace(header)
	if len(h) >= 6 && strings.EqualFold(h[:6], "height") {
		return Version1
	}
	return Version0
}

// ReadFile opens path and parses it with Read
func ReadFile(path string) (*Column, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gauge file: %w", err)
	}
	defer f.Close()

	col, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read gauge file %s: %w", path, err)
	}
	return col, nil
}

// Read parses a gauge file of either version, auto-detecting the layout
func Read(r io.Reader) (*Column, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) < 3 {
		return nil, ErrEmptyGeometry
	}

	version := DetectVersion(lines[0])
	scalars := splitFields(lines[1])
	rows := lines[3:]
	if len(rows) == 0 {
		return nil, ErrEmptyGeometry
	}

	var p Params
	switch version {
	case Version1:
		if len(scalars) < 1 {
			return nil, fmt.Errorf("missing heightOfColumn: %w", ErrMalformedRow)
		}
		h, err := parseInt(scalars[0])
		if err != nil {
			return nil, fmt.Errorf("heightOfColumn: %w", err)
		}
		p.HeightOfColumn = h
	default:
		if len(scalars) < 6 {
			return nil, fmt.Errorf("scalar line has %d fields, want 6: %w", len(scalars), ErrMalformedRow)
		}
		var err error
		if p.TiltInXZ, err = parseFloat(scalars[0]); err != nil {
			return nil, err
		}
		if p.TiltInYZ, err = parseFloat(scalars[1]); err != nil {
			return nil, err
		}
		if p.TiltTotal, err = parseFloat(scalars[2]); err != nil {
			return nil, err
		}
		// scalars[3] is the median wall thickness, recomputed from the rows
		if p.HeightOfColumn, err = parseInt(scalars[4]); err != nil {
			return nil, err
		}
		if p.NumberOfImputedLayers, err = parseInt(scalars[5]); err != nil {
			return nil, err
		}
	}

	n := len(rows)
	if p.HeightOfColumn != n {
		// the row count is authoritative: clipped gauge files keep their old header
		p.HeightOfColumn = n
	}
	alloc(&p, n)

	for i, line := range rows {
		fields := splitFields(line)
		vals := make([]float64, len(fields))
		for j, f := range fields {
			v, err := parseFloat(f)
			if err != nil {
				return nil, fmt.Errorf("row %d field %d: %w", i+1, j+1, err)
			}
			vals[j] = v
		}

		switch version {
		case Version1:
			if len(vals) < ver1Fields {
				return nil, fmt.Errorf("row %d has %d fields, want %d: %w", i+1, len(vals), ver1Fields, ErrMalformedRow)
			}
			p.WallThickness[i] = vals[1]
			p.ZMid[i], p.XMid[i], p.YMid[i] = vals[2], vals[3], vals[4]
			p.IXMid[i], p.IYMid[i] = vals[5], vals[6]
			p.OuterMajorRadius[i], p.OuterMinorRadius[i] = vals[7], vals[8]
			p.InnerMajorRadius[i], p.InnerMinorRadius[i] = vals[9], vals[10]
			p.Theta[i], p.ITheta[i] = vals[11], vals[12]
			p.OuterR2[i], p.InnerR2[i] = vals[13], vals[14]
		default:
			if len(vals) < ver0Fields {
				return nil, fmt.Errorf("row %d has %d fields, want %d: %w", i+1, len(vals), ver0Fields, ErrMalformedRow)
			}
			p.XMid[i], p.YMid[i], p.ZMid[i] = vals[0], vals[1], vals[2]
			p.IXMid[i], p.IYMid[i] = vals[3], vals[4]
			p.OuterMajorRadius[i], p.OuterMinorRadius[i] = vals[5], vals[6]
			p.InnerMajorRadius[i], p.InnerMinorRadius[i] = vals[7], vals[8]
			p.WallThickness[i] = vals[9]
			p.Theta[i], p.ITheta[i] = vals[10], vals[11]
			p.OuterR2[i], p.InnerR2[i] = vals[12], vals[13]
		}
	}

	return New(p)
}

// Write serialises the column in the requested layout version
func Write(w io.Writer, c *Column, version int) error {
	switch version {
	case Version0:
		return WriteVer0(w, c)
	case Version1:
		return WriteVer1(w, c)
	default:
		return fmt.Errorf("version %d: %w", version, ErrUnknownVersion)
	}
}

// WriteFile writes the column to path in the requested layout version
func WriteFile(path string, c *Column, version int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create gauge file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, c, version); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteVer0 writes the legacy layout with the scalar header line
func WriteVer0(w io.Writer, c *Column) error {
	p := &c.p
	var b strings.Builder

	b.WriteString("tiltInXZ\ttiltInYZ\ttiltTotal\twallThickness\theightOfColumn\tnumberOfImputedLayers\n")
	fmt.Fprintf(&b, "%1.4f\t%1.4f\t%1.4f\t%d\t%d\t%d\n",
		p.TiltInXZ, p.TiltInYZ, p.TiltTotal,
		int(math.Round(c.MedianWallThickness())), p.HeightOfColumn, p.NumberOfImputedLayers)

	b.WriteString("xOutMid\tyOutMid\tzOutMid\txInnMid\tyInnMid\t")
	b.WriteString("outerMajorRadius\touterMinorRadius\tinnerMajorRadius\tinnerMinorRadius\t")
	b.WriteString("wallThickness\touterTheta\tinnerTheta\touterR2\tinnerR2\n")

	for i := 0; i < p.HeightOfColumn; i++ {
		fmt.Fprintf(&b, "%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%3.2f\t%3.4f\t%3.4f\t%2.4f\t%2.4f\n",
			p.XMid[i], p.YMid[i], p.ZMid[i], p.IXMid[i], p.IYMid[i],
			p.OuterMajorRadius[i], p.OuterMinorRadius[i], p.InnerMajorRadius[i], p.InnerMinorRadius[i],
			p.WallThickness[i], p.Theta[i], p.ITheta[i], p.OuterR2[i], p.InnerR2[i])
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteVer1 writes the current layout with a 1-based row index per slice
func WriteVer1(w io.Writer, c *Column) error {
	p := &c.p
	var b strings.Builder

	b.WriteString("heightOfColumn\n")
	fmt.Fprintf(&b, "%d\n", p.HeightOfColumn)

	b.WriteString("number\twallThickness\tzOutMid\txOutMid\tyOutMid\txInnMid\tyInnMid\t")
	b.WriteString("outerMajorRadius\touterMinorRadius\tinnerMajorRadius\tinnerMinorRadius\t")
	b.WriteString("outerTheta\tinnerTheta\touterR2\tinnerR2\n")

	for i := 0; i < p.HeightOfColumn; i++ {
		fmt.Fprintf(&b, "%4.0f\t%3.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%4.2f\t%3.4f\t%3.4f\t%1.4f\t%1.4f\n",
			float64(i+1), p.WallThickness[i],
			p.ZMid[i], p.XMid[i], p.YMid[i], p.IXMid[i], p.IYMid[i],
			p.OuterMajorRadius[i], p.OuterMinorRadius[i], p.InnerMajorRadius[i], p.InnerMinorRadius[i],
			p.Theta[i], p.ITheta[i], p.OuterR2[i], p.InnerR2[i])
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func alloc(p *Params, n int) {
	for _, a := range []*[]float64{
		&p.XMid, &p.YMid, &p.ZMid, &p.IXMid, &p.IYMid,
		&p.OuterMajorRadius, &p.OuterMinorRadius, &p.InnerMajorRadius, &p.InnerMinorRadius,
		&p.WallThickness, &p.Theta, &p.ITheta, &p.OuterR2, &p.InnerR2,
	} {
		*a = make([]float64, n)
	}
}

func splitFields(line string) []string {
	parts := strings.Split(line, "\t")
	out := parts[:0]
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseFloat accepts decimal commas, which some locales wrote into older files
func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrMalformedRow)
	}
	return v, nil
}

func parseInt(s string) (int, error) {
	v, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	return int(math.Round(v)), nil
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.LinInterp, sorted, nil)
}
