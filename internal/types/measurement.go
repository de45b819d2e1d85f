package types

import "fmt"

// Measurement is one sensor transaction result.
// Temperature is in sensor native unit (Fahrenheit for SHT3x conversion used here),
// Humidity is relative, percent.
type Measurement struct {
	Temperature float64
	Humidity    float64
}

func (m Measurement) String() string {
	return fmt.Sprintf("temperature=%.2f humidity=%.2f", m.Temperature, m.Humidity)
}
