// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadLinUCBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.txt")
	bPath := filepath.Join(dir, "b.txt")

	m := NewLinUCB(0.3)
	m.Train(Features(50, 50, 100), 5.0)

	require.NoError(t, SaveLinUCB(m, aPath, bPath))

	loaded, err := LoadLinUCB(aPath, bPath, 0.3)
	require.NoError(t, err)

	for i := 0; i < D; i++ {
		for j := 0; j < D; j++ {
			assert.InDelta(t, m.A[i][j], loaded.A[i][j], 1e-9)
		}
		assert.InDelta(t, m.B[i], loaded.B[i], 1e-9)
	}
}

func TestSaveLoadMultiLinUCBRoundTrip(t *testing.T) {
	dir := t.TempDir()
	aPath := filepath.Join(dir, "a.txt")
	bTTFTPath := filepath.Join(dir, "b_ttft.txt")
	bSpeedPath := filepath.Join(dir, "b_speed.txt")

	m := NewMultiLinUCB(0.5)
	m.Train(Features(50, 50, 100), 2.5, 8.3)

	require.NoError(t, SaveMultiLinUCB(m, aPath, bTTFTPath, bSpeedPath))

	loaded, err := LoadMultiLinUCB(aPath, bTTFTPath, bSpeedPath, 0.5)
	require.NoError(t, err)

	for i := 0; i < D; i++ {
		for j := 0; j < D; j++ {
			assert.InDelta(t, m.A[i][j], loaded.A[i][j], 1e-6)
		}
		assert.InDelta(t, m.BTTFT[i], loaded.BTTFT[i], 1e-6)
		assert.InDelta(t, m.BSpeed[i], loaded.BSpeed[i], 1e-6)
	}
}

func TestLoadMultiLinUCBMissingFilesKeepsWarmStart(t *testing.T) {
	dir := t.TempDir()
	loaded, err := LoadMultiLinUCB(
		filepath.Join(dir, "missing-a.txt"),
		filepath.Join(dir, "missing-b-ttft.txt"),
		filepath.Join(dir, "missing-b-speed.txt"),
		0.5,
	)
	require.NoError(t, err)

	warm := NewMultiLinUCB(0.5)
	assert.Equal(t, warm.A, loaded.A)
	assert.Equal(t, warm.BTTFT, loaded.BTTFT)
	assert.Equal(t, warm.BSpeed, loaded.BSpeed)
}

func TestLoadLinUCBMissingFilesFallsBackToIdentity(t *testing.T) {
	dir := t.TempDir()
	loaded, err := LoadLinUCB(filepath.Join(dir, "missing-a.txt"), filepath.Join(dir, "missing-b.txt"), 0.5)
	require.NoError(t, err)
	assert.Equal(t, Identity(), loaded.A)
	assert.Equal(t, Vector{}, loaded.B)
}
