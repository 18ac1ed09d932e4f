// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package bandit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// SaveLinUCB writes m's A matrix and b vector to separate text files, one
// row per line, each value formatted to 10 decimal places. Writes are
// atomic: each file is
// written to a temporary sibling and renamed into place, so a reader never
// observes a partially written file.
func SaveLinUCB(m *LinUCB, aPath, bPath string) error {
	if err := writeMatrix(aPath, m.A); err != nil {
		return fmt.Errorf("bandit: save A: %w", err)
	}
	if err := writeVector(bPath, m.B); err != nil {
		return fmt.Errorf("bandit: save b: %w", err)
	}
	return nil
}

// LoadLinUCB reads a model previously written by SaveLinUCB. A missing A
// file yields the identity matrix and a missing b file yields the zero
// vector, so a cold start needs no pre-seeded files.
func LoadLinUCB(aPath, bPath string, alpha float64) (*LinUCB, error) {
	m := NewLinUCB(alpha)

	if a, ok, err := readMatrix(aPath); err != nil {
		return nil, fmt.Errorf("bandit: load A: %w", err)
	} else if ok {
		m.A = a
	}

	if b, ok, err := readVector(bPath); err != nil {
		return nil, fmt.Errorf("bandit: load b: %w", err)
	} else if ok {
		m.B = b
	}

	return m, nil
}

// SaveMultiLinUCB writes m's shared A matrix and both weight vectors to
// three text files in the same formats SaveLinUCB uses, with the same
// atomic rename-into-place writes.
func SaveMultiLinUCB(m *MultiLinUCB, aPath, bTTFTPath, bSpeedPath string) error {
	if err := writeMatrix(aPath, m.A); err != nil {
		return fmt.Errorf("bandit: save A: %w", err)
	}
	if err := writeVector(bTTFTPath, m.BTTFT); err != nil {
		return fmt.Errorf("bandit: save b_ttft: %w", err)
	}
	if err := writeVector(bSpeedPath, m.BSpeed); err != nil {
		return fmt.Errorf("bandit: save b_speed: %w", err)
	}
	return nil
}

// LoadMultiLinUCB reads a model previously written by SaveMultiLinUCB.
// Each missing file leaves the corresponding field at its compiled-in
// warm-start value, so a model that was never saved still scores with the
// pre-trained prior rather than an identity/zero cold start.
func LoadMultiLinUCB(aPath, bTTFTPath, bSpeedPath string, alpha float64) (*MultiLinUCB, error) {
	m := NewMultiLinUCB(alpha)

	if a, ok, err := readMatrix(aPath); err != nil {
		return nil, fmt.Errorf("bandit: load A: %w", err)
	} else if ok {
		m.A = a
	}

	if b, ok, err := readVector(bTTFTPath); err != nil {
		return nil, fmt.Errorf("bandit: load b_ttft: %w", err)
	} else if ok {
		m.BTTFT = b
	}

	if b, ok, err := readVector(bSpeedPath); err != nil {
		return nil, fmt.Errorf("bandit: load b_speed: %w", err)
	} else if ok {
		m.BSpeed = b
	}

	return m, nil
}

func writeMatrix(path string, m Matrix) error {
	return atomicWrite(path, func(w *bufio.Writer) error {
		for i := 0; i < D; i++ {
			for j := 0; j < D; j++ {
				if _, err := fmt.Fprintf(w, "%.10f ", m[i][j]); err != nil {
					return err
				}
			}
			if _, err := w.WriteString("\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeVector(path string, v Vector) error {
	return atomicWrite(path, func(w *bufio.Writer) error {
		for i := 0; i < D; i++ {
			if _, err := fmt.Fprintf(w, "%.10f ", v[i]); err != nil {
				return err
			}
		}
		_, err := w.WriteString("\n")
		return err
	})
}

func readMatrix(path string) (Matrix, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Matrix{}, false, nil
	}
	if err != nil {
		return Matrix{}, false, err
	}
	defer f.Close()

	var m Matrix
	for i := 0; i < D; i++ {
		for j := 0; j < D; j++ {
			if _, err := fmt.Fscan(f, &m[i][j]); err != nil {
				return Matrix{}, false, fmt.Errorf("row %d col %d: %w", i, j, err)
			}
		}
	}
	return m, true, nil
}

func readVector(path string) (Vector, bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Vector{}, false, nil
	}
	if err != nil {
		return Vector{}, false, err
	}
	defer f.Close()

	var v Vector
	for i := 0; i < D; i++ {
		if _, err := fmt.Fscan(f, &v[i]); err != nil {
			return Vector{}, false, fmt.Errorf("index %d: %w", i, err)
		}
	}
	return v, true, nil
}

func atomicWrite(path string, write func(*bufio.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
