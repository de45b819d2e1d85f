package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/thermonode/internal/cycle"
)

func TestStatusLine(t *testing.T) {
	t.Parallel()
	r := cycle.Report{NetworkAttempts: 3}
	s := &cycle.Stat{Cycles: 4, Published: 2, NetworkDegraded: 2}
	line := statusLine(r, s)
	assert.Equal(t, "STATUS="+r.String()+" | cycles=4 published=2 network_degraded=2 broker_degraded=0 sensor_errors=0", line)
	assert.Contains(t, line, "network=degraded/3 broker=skip")
}

func TestModNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "run", Mod.Name)
	assert.Equal(t, "once", OnceMod.Name)
}
