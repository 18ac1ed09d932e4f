// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPreservesOrder(t *testing.T) {
	r := New()
	r.Register(&Worker{ID: "c"})
	r.Register(&Worker{ID: "a"})
	r.Register(&Worker{ID: "b"})

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
}

func TestReregisterReplacesInPlace(t *testing.T) {
	r := New()
	r.Register(&Worker{ID: "a", HasAccelerator: false})
	r.Register(&Worker{ID: "b"})
	r.Register(&Worker{ID: "a", HasAccelerator: true})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID, "reregistering a must not move it to the back of the order")
	assert.True(t, snap[0].HasAccelerator)
}

func TestRemove(t *testing.T) {
	r := New()
	r.Register(&Worker{ID: "a"})
	r.Register(&Worker{ID: "b"})
	r.Remove("a")

	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestIdleAcceleratorPrefersRegistrationOrder(t *testing.T) {
	r := New()
	r.Register(&Worker{ID: "a", HasAccelerator: false})
	r.Register(&Worker{ID: "b", HasAccelerator: true, AcceleratorIdle: false})
	r.Register(&Worker{ID: "c", HasAccelerator: true, AcceleratorIdle: true})
	r.Register(&Worker{ID: "d", HasAccelerator: true, AcceleratorIdle: true})

	w, ok := r.IdleAccelerator()
	require.True(t, ok)
	assert.Equal(t, "c", w.ID)
}

func TestIdleAcceleratorNoneAvailable(t *testing.T) {
	r := New()
	r.Register(&Worker{ID: "a", HasAccelerator: true, AcceleratorIdle: false})
	_, ok := r.IdleAccelerator()
	assert.False(t, ok)
}

func TestUpdateStatusIgnoresUnknownWorker(t *testing.T) {
	r := New()
	r.UpdateStatus("ghost", Status{CPULoad: 50}, true, true)
	_, ok := r.Get("ghost")
	assert.False(t, ok)
}
