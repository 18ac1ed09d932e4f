// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package inference

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubprocessExecutorRunsAndTrimsOutput(t *testing.T) {
	e := NewSubprocessExecutor("/bin/cat")
	out, err := e.Execute(context.Background(), "hello world\n")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestSubprocessExecutorSurfacesNonZeroExit(t *testing.T) {
	e := NewSubprocessExecutor("/bin/sh", "-c", "echo boom >&2; exit 3")
	_, err := e.Execute(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSubprocessExecutorMissingBinary(t *testing.T) {
	e := NewSubprocessExecutor("/definitely/not/a/real/binary")
	_, err := e.Execute(context.Background(), "x")
	require.Error(t, err)
}
