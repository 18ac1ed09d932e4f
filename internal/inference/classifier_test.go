// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package inference

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgeforge/swarm/internal/imaging"
	"github.com/edgeforge/swarm/internal/protocol"
)

func encodeTestJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: uint8(20 * x), G: uint8(30 * y), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestClassifierStagesPreprocessesAndPostprocesses(t *testing.T) {
	root := t.TempDir()
	bundle := filepath.Join(root, "bundle")

	labels := filepath.Join(root, "labels.txt")
	require.NoError(t, os.WriteFile(labels, []byte("cat\ndog\nfish\nbird\n"), 0o644))

	// Stand-in model output: the logits the external binary would have
	// written for the staged tensor.
	resultDir := filepath.Join(bundle, "Result_0")
	require.NoError(t, os.MkdirAll(resultDir, 0o755))
	require.NoError(t, imaging.WriteRaw(filepath.Join(resultDir, "output_0:0.raw"), []float32{0.1, 0.9, 0.2, 0.8}))

	c := &Classifier{
		ScratchDir: filepath.Join(root, "scratch"),
		BundleDir:  bundle,
		LabelsPath: labels,
		ModelPath:  "/bin/true",
		Size:       8,
	}

	payload := protocol.Base64Encode(encodeTestJPEG(t))
	out, err := c.Execute(context.Background(), payload)
	require.NoError(t, err)
	require.Equal(t, "0.9 1 dog", out)

	// The received image must be staged through scratch and bundle, and
	// the preprocessing manifest must list the tensor written for it.
	scratched, err := filepath.Glob(filepath.Join(root, "scratch", "recv_*.jpg"))
	require.NoError(t, err)
	require.Len(t, scratched, 1)
	staged, err := filepath.Glob(filepath.Join(bundle, "images", "recv_*.jpg"))
	require.NoError(t, err)
	require.Len(t, staged, 1)

	list, err := os.ReadFile(filepath.Join(bundle, TargetListName))
	require.NoError(t, err)
	require.Contains(t, string(list), ".raw")
}

func TestClassifierRejectsUndecodablePayload(t *testing.T) {
	c := &Classifier{BundleDir: t.TempDir(), ScratchDir: t.TempDir(), ModelPath: "/bin/true"}
	_, err := c.Execute(context.Background(), "====")
	require.Error(t, err)
}

func TestClassifierSurfacesModelFailure(t *testing.T) {
	root := t.TempDir()
	c := &Classifier{
		ScratchDir: filepath.Join(root, "scratch"),
		BundleDir:  filepath.Join(root, "bundle"),
		LabelsPath: filepath.Join(root, "labels.txt"),
		ModelPath:  "/bin/false",
		Size:       8,
	}
	payload := protocol.Base64Encode(encodeTestJPEG(t))
	_, err := c.Execute(context.Background(), payload)
	require.Error(t, err)
}
