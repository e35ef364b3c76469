package postbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHousekeeperSweepClearsCleanTables(t *testing.T) {
	pb := openTestPostbox(t)

	res := <-pb.CreateRecord(rawField("swept"))
	require.NoError(t, res.Err)

	h := NewHousekeeper(pb, time.Hour)
	h.sweep()

	got := <-pb.GetRecord(res.Value)
	require.NoError(t, got.Err)
	require.NotNil(t, got.Value, "a clean table's committed data must survive a cache sweep")
	assert.Equal(t, `"swept"`, string(got.Value.Fields["name"]))
}

func TestHousekeeperStartStopIsIdempotent(t *testing.T) {
	pb := openTestPostbox(t)
	h := NewHousekeeper(pb, 10*time.Millisecond)

	h.Start()
	h.Start() // second Start before Stop must be a no-op, not a second goroutine
	time.Sleep(50 * time.Millisecond)
	h.Stop()
	h.Stop() // second Stop must not panic or block
}

func TestHousekeeperTicksRunOnWorkerGoroutine(t *testing.T) {
	pb := openTestPostbox(t)
	res := <-pb.CreateRecord(rawField("ticked"))
	require.NoError(t, res.Err)

	h := NewHousekeeper(pb, 5*time.Millisecond)
	h.Start()
	defer h.Stop()

	time.Sleep(30 * time.Millisecond)

	got := <-pb.GetRecord(res.Value)
	require.NoError(t, got.Err)
	require.NotNil(t, got.Value)
}
