package orchestrator

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDevice(id string) Device {
	return Device{
		ID:        id,
		Name:      "Canon SELPHY CP1300",
		Model:     ModelCanonSelphy,
		QueueName: "rig_" + id,
		URI:       "usb://Canon/SELPHY",
		PPD:       "raw",
	}
}

func TestRegistryAttachDetach(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	require.NoError(t, r.Attach(testDevice("d1")))
	require.NoError(t, r.Attach(testDevice("d2")))

	err := r.Attach(testDevice("d1"))
	require.ErrorIs(t, err, ErrDuplicateDevice)

	dev, ok := r.Get("d1")
	require.True(t, ok)
	require.Equal(t, "d1", dev.ID)

	require.True(t, r.Detach("d1"))
	require.False(t, r.Detach("d1"), "second detach must be a no-op")

	_, ok = r.Get("d1")
	require.False(t, ok)
}

func TestRegistryListInsertionOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.Attach(testDevice(id)))
	}
	require.True(t, r.Detach("a"))
	require.NoError(t, r.Attach(testDevice("a")))

	var ids []string
	for _, d := range r.List() {
		ids = append(ids, d.ID)
	}
	require.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("dev-%d", i)
			_ = r.Attach(testDevice(id))
			_ = r.List()
			_, _ = r.Get(id)
			if i%2 == 0 {
				r.Detach(id)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, r.List(), 8)
}
