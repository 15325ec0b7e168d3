package controller

import (
	"math"
	"math/rand/v2"

	"github.com/luifiio/bp4w-maq/internal/model"
)

// Engine produces plausible readings for a warming-up engine under a random
// driving pattern. It is not safe for concurrent use.
type Engine struct {
	rng *rand.Rand

	elapsed  float64
	coolant  float64
	oil      float64
	pressure float64
	throttle float64
}

// NewEngine starts a cold engine at ambient temperature.
func NewEngine(seed uint64) *Engine {
	return &Engine{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		coolant: 20,
		oil:     20,
	}
}

// Step advances the simulation by dt seconds and returns the new sample.
// Timestamps are seconds since the engine started and strictly increase.
func (e *Engine) Step(dt float64) model.SensorSample {
	e.elapsed += dt
	warmup := math.Min(e.elapsed/30, 1)

	// Coolant settles around 85-95 with small fluctuations.
	target := 85 + e.uniform(-2, 5)
	e.coolant += (target - e.coolant) * 0.02
	e.coolant += e.uniform(-0.5, 0.5)

	// Oil runs a few degrees above coolant.
	target = e.coolant + 5 + e.uniform(0, 10)
	e.oil += (target - e.oil) * 0.015
	e.oil += e.uniform(-0.3, 0.3)

	if e.throttle < 10 {
		target = 15 + warmup*5
	} else {
		target = 35 + e.throttle/100*25
	}
	e.pressure += (target - e.pressure) * 0.1
	e.pressure += e.uniform(-1, 1)
	e.pressure = math.Max(5, e.pressure)

	switch e.rng.IntN(3) {
	case 0:
		e.throttle += e.uniform(-5, -2)
	case 1:
		e.throttle += e.uniform(-1, 1)
	default:
		e.throttle += e.uniform(2, 8)
	}
	e.throttle = math.Max(0, math.Min(100, e.throttle))

	return model.SensorSample{
		Timestamp:        math.Round(e.elapsed*1000) / 1000,
		CoolantTemp:      model.Float(round1(e.coolant)),
		OilTemp:          model.Float(round1(e.oil)),
		OilPressure:      model.Float(round1(e.pressure)),
		ThrottlePosition: model.Float(round1(e.throttle)),
	}
}

func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + e.rng.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
