// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package imaging implements the deterministic image transforms that feed
// and consume the image-classification pipeline: center-crop/resize/
// normalize preprocessing, and argmax/label-lookup postprocessing. Both are
// plain data-shaping code; the neural network inference step itself is
// external to this module.
package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// MeanR, MeanG, MeanB and Divisor are the normalization constants applied to every
// channel: (value - mean) / divisor.
const (
	MeanR = 128.0
	MeanG = 128.0
	MeanB = 128.0
	Divisor = 128.0
)

// ResizeMethod selects the interpolation used when resizing a cropped
// image to its target size.
type ResizeMethod string

const (
	// ResizeBilinear mirrors OpenCV's INTER_LINEAR.
	ResizeBilinear ResizeMethod = "bilinear"
	// ResizeAntialias scales with draw.ApproxBiLinear; no area averaging
	// is performed.
	ResizeAntialias ResizeMethod = "antialias"
)

// ParseResizeMethod validates a CLI-supplied resize method name.
func ParseResizeMethod(s string) (ResizeMethod, error) {
	switch ResizeMethod(s) {
	case ResizeBilinear, ResizeAntialias:
		return ResizeMethod(s), nil
	default:
		return "", fmt.Errorf("imaging: unknown resize method %q (want bilinear or antialias)", s)
	}
}

// CenterCropSquare crops img to a square of side min(width, height),
// centered in the original frame.
func CenterCropSquare(img image.Image) image.Image {
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	rect := image.Rect(x0, y0, x0+side, y0+side)

	out := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}

// Resize scales img to size x size using the interpolation named by
// method.
func Resize(img image.Image, size int, method ResizeMethod) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	var scaler draw.Scaler
	switch method {
	case ResizeAntialias:
		scaler = draw.ApproxBiLinear // bilinear approximation, no area averaging
	default:
		scaler = draw.BiLinear
	}
	scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// ToNormalizedBGR converts img to a flat []float32 in row-major, per-pixel
// (B, G, R) order, subtracting the channel mean and dividing by Divisor,
// the layout the classification model consumes.
func ToNormalizedBGR(img image.Image) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float32, 0, w*h*3)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// RGBA returns 16-bit-per-channel premultiplied values; scale
			// down to 8-bit range before normalizing.
			rf := float32(r>>8) - MeanR
			gf := float32(g>>8) - MeanG
			bf := float32(bl>>8) - MeanB
			out = append(out, bf/Divisor, gf/Divisor, rf/Divisor)
		}
	}
	return out
}

// WriteRaw writes values as consecutive little-endian float32 values.
func WriteRaw(path string, values []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("imaging: create raw file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 4)
	for _, v := range values {
		bits := math.Float32bits(v)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("imaging: write raw file: %w", err)
		}
	}
	return nil
}

// RawPathFor derives the sibling .raw path for a processed .jpg path, e.g.
// "a/b/cat.jpg" -> "a/b/cat.raw".
func RawPathFor(jpgPath string) string {
	ext := filepath.Ext(jpgPath)
	return strings.TrimSuffix(jpgPath, ext) + ".raw"
}

// ProcessImage reads the image at srcPath, center-crops and resizes it to
// size x size, writes the resulting JPEG to dstPath, and writes the
// normalized float32 raw tensor to its sibling .raw path. It returns the
// raw path written.
func ProcessImage(srcPath, dstPath string, size int, method ResizeMethod) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("imaging: open %s: %w", srcPath, err)
	}
	img, err := decodeImage(f, srcPath)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("imaging: decode %s: %w", srcPath, err)
	}

	cropped := CenterCropSquare(img)
	resized := Resize(cropped, size, method)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return "", fmt.Errorf("imaging: mkdir for %s: %w", dstPath, err)
	}
	out, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("imaging: create %s: %w", dstPath, err)
	}
	err = jpeg.Encode(out, resized, &jpeg.Options{Quality: 95})
	out.Close()
	if err != nil {
		return "", fmt.Errorf("imaging: encode %s: %w", dstPath, err)
	}

	rawPath := RawPathFor(dstPath)
	if err := WriteRaw(rawPath, ToNormalizedBGR(resized)); err != nil {
		return "", err
	}
	return rawPath, nil
}

// decodeImage decodes JPEG by extension and falls back to content
// sniffing for anything else.
func decodeImage(f *os.File, path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return jpeg.Decode(f)
	default:
		img, _, err := image.Decode(f)
		return img, err
	}
}

// isClassifiableExt reports whether path names a file ProcessFolder should
// process (case-insensitive .jpg/.jpeg).
func isClassifiableExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jpg" || ext == ".jpeg"
}

// WriteTargetList (re)creates listPath and writes one rawPath per line;
// the manifest is cleared at the start of every run.
func WriteTargetList(listPath string, rawPaths []string) error {
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("imaging: create target list %s: %w", listPath, err)
	}
	defer f.Close()

	for _, p := range rawPaths {
		if _, err := fmt.Fprintln(f, p); err != nil {
			return fmt.Errorf("imaging: write target list %s: %w", listPath, err)
		}
	}
	return nil
}

// ProcessFolder recursively walks srcDir, processing every .jpg/.jpeg file
// (case-insensitive) into the equivalent path under dstDir, and returns the
// list of .raw paths written, in walk order.
func ProcessFolder(srcDir, dstDir string, size int, method ResizeMethod) ([]string, error) {
	var rawPaths []string

	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isClassifiableExt(path) {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dstDir, rel)

		rawPath, err := ProcessImage(path, dstPath, size, method)
		if err != nil {
			return err
		}
		rawPaths = append(rawPaths, rawPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("imaging: process folder %s: %w", srcDir, err)
	}
	return rawPaths, nil
}
