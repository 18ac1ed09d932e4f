// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenterCropSquareCropsToShorterSide(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	cropped := CenterCropSquare(img)
	b := cropped.Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 100, b.Dy())
}

func TestResizeProducesRequestedSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	resized := Resize(img, 24, ResizeBilinear)
	assert.Equal(t, 24, resized.Bounds().Dx())
	assert.Equal(t, 24, resized.Bounds().Dy())
}

func TestToNormalizedBGRAppliesMeanAndDivisor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 128, A: 255})

	values := ToNormalizedBGR(img)
	require.Len(t, values, 3)

	wantB := (float32(128) - MeanB) / Divisor
	wantG := (float32(0) - MeanG) / Divisor
	wantR := (float32(255) - MeanR) / Divisor

	assert.InDelta(t, wantB, values[0], 1e-3)
	assert.InDelta(t, wantG, values[1], 1e-3)
	assert.InDelta(t, wantR, values[2], 1e-3)
}

func TestParseResizeMethodRejectsUnknown(t *testing.T) {
	_, err := ParseResizeMethod("nearest")
	assert.Error(t, err)
}

func TestRawPathFor(t *testing.T) {
	assert.Equal(t, "a/b/cat.raw", RawPathFor("a/b/cat.jpg"))
	assert.Equal(t, "cat.raw", RawPathFor("cat.jpeg"))
}
