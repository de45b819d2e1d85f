package cycle

import (
	"fmt"
	"time"
)

// Budget is static worst case of Step, sum of all bounded waits.
// Driver call latency (except where manager sets explicit timeout) is not included.
type Budget struct {
	Network       time.Duration
	NetworkSettle time.Duration
	Broker        time.Duration
	Sensor        time.Duration
	PublishLinger time.Duration
}

func (b Budget) WorstCase() time.Duration {
	return b.Network + b.NetworkSettle + b.Broker + b.Sensor + b.PublishLinger
}

func (b Budget) String() string {
	return fmt.Sprintf("worst_case=%v (network=%v settle=%v broker=%v sensor=%v linger=%v)",
		b.WorstCase(), b.Network, b.NetworkSettle, b.Broker, b.Sensor, b.PublishLinger)
}
