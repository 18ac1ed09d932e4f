// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package inference

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/edgeforge/swarm/internal/imaging"
	"github.com/edgeforge/swarm/internal/protocol"
)

// Classifier implements workeragent.Executor for image classification
// jobs. The job payload is a base64-encoded image; Execute stages it
// through the same on-disk pipeline the standalone preprocess/postprocess
// tools use, invokes the external model binary over the staged bundle, and
// returns the classification as "<max_value> <max_idx> <label>".
type Classifier struct {
	// ScratchDir receives the raw image under a timestamped name before it
	// is staged into the bundle.
	ScratchDir string
	// BundleDir is the model bundle root: images go to images/, tensors to
	// cropped/, and the model binary is run with this as its working
	// directory, reading target_raw_list.txt and writing Result_* output
	// directories.
	BundleDir string
	// LabelsPath is the line-per-class labels file.
	LabelsPath string
	// ModelPath is the external inference binary; ModelArgs are passed
	// verbatim.
	ModelPath string
	ModelArgs []string

	// Size and Method configure preprocessing; zero values mean 224 and
	// bilinear.
	Size   int
	Method imaging.ResizeMethod

	// Timeout bounds the model invocation; DefaultTimeout when zero.
	Timeout time.Duration
}

// TargetListName is the manifest file the model binary reads, relative to
// the bundle directory.
const TargetListName = "target_raw_list.txt"

// Execute implements workeragent.Executor.
func (c *Classifier) Execute(ctx context.Context, data string) (string, error) {
	raw := protocol.Base64Decode(data)
	if len(raw) == 0 {
		return "", fmt.Errorf("inference: job payload is not a decodable image")
	}

	if err := c.stageImage(raw); err != nil {
		return "", err
	}

	size := c.Size
	if size <= 0 {
		size = 224
	}
	method := c.Method
	if method == "" {
		method = imaging.ResizeBilinear
	}

	imagesDir := filepath.Join(c.BundleDir, "images")
	croppedDir := filepath.Join(c.BundleDir, "cropped")
	rawPaths, err := imaging.ProcessFolder(imagesDir, croppedDir, size, method)
	if err != nil {
		return "", err
	}
	if err := imaging.WriteTargetList(filepath.Join(c.BundleDir, TargetListName), rawPaths); err != nil {
		return "", err
	}

	if err := c.runModel(ctx); err != nil {
		return "", err
	}

	outPath, err := c.latestResultRaw()
	if err != nil {
		return "", err
	}
	result, err := imaging.Postprocess(outPath, c.LabelsPath)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%g %d %s", result.Value, result.Index, result.Label), nil
}

// stageImage writes the decoded bytes to a timestamped scratch path, then
// copies them into the bundle's images/ directory for preprocessing.
func (c *Classifier) stageImage(raw []byte) error {
	if err := os.MkdirAll(c.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("inference: create scratch dir: %w", err)
	}
	name := fmt.Sprintf("recv_%d.jpg", time.Now().UnixNano())
	scratchPath := filepath.Join(c.ScratchDir, name)
	if err := os.WriteFile(scratchPath, raw, 0o644); err != nil {
		return fmt.Errorf("inference: write received image: %w", err)
	}

	imagesDir := filepath.Join(c.BundleDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return fmt.Errorf("inference: create bundle images dir: %w", err)
	}
	if err := copyFile(scratchPath, filepath.Join(imagesDir, name)); err != nil {
		return fmt.Errorf("inference: stage image into bundle: %w", err)
	}
	return nil
}

func (c *Classifier) runModel(ctx context.Context) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.ModelPath, c.ModelArgs...)
	cmd.Dir = c.BundleDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("inference: model %s failed: %w (output: %s)", c.ModelPath, err, out)
	}
	return nil
}

// latestResultRaw finds the most recently written raw logit file under the
// bundle's Result_* output directories. The model writes one Result_<n>
// directory per processed tensor; runs accumulate, so recency picks out
// this job's output.
func (c *Classifier) latestResultRaw() (string, error) {
	dirs, err := filepath.Glob(filepath.Join(c.BundleDir, "Result_*"))
	if err != nil {
		return "", fmt.Errorf("inference: scan result dirs: %w", err)
	}

	var newest string
	var newestMod time.Time
	for _, dir := range dirs {
		filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || filepath.Ext(path) != ".raw" {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if newest == "" || info.ModTime().After(newestMod) {
				newest = path
				newestMod = info.ModTime()
			}
			return nil
		})
	}
	if newest == "" {
		return "", fmt.Errorf("inference: model produced no Result_*/*.raw output under %s", c.BundleDir)
	}
	return newest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
