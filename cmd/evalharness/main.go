package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/vigil/backend/internal/aggregator"
	"github.com/vigil/backend/internal/config"
	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/enforcement"
)

// evalharness replays a synthetic confidence trace through the score
// aggregator and the state machine, printing every transition. Useful
// for tuning weights, alpha and thresholds offline without a camera.

type scenario func(tick int) core.ScoreSample

func main() {
	name := flag.String("scenario", "walkaway", "trace to replay: steady, walkaway, flaky, noisy")
	ticks := flag.Int("ticks", 120, "number of verification ticks to simulate")
	seed := flag.Int64("seed", 42, "rng seed for the noisy scenario")
	flag.Parse()

	cfg := config.DefaultVerification()
	rng := rand.New(rand.NewSource(*seed))

	scenarios := map[string]scenario{
		// All signals healthy and high.
		"steady": func(tick int) core.ScoreSample {
			return sample(0.95, 0.92, 0.90)
		},
		// User present for 40 ticks, then leaves the desk.
		"walkaway": func(tick int) core.ScoreSample {
			if tick < 40 {
				return sample(0.95, 0.92, 0.90)
			}
			return sample(0.05, 0.05, 0.10)
		},
		// Camera drops out periodically; behavior stays strong.
		"flaky": func(tick int) core.ScoreSample {
			s := sample(0.93, 0.90, 0.88)
			if tick%7 < 3 {
				s.Face = nil
				s.Liveness = nil
			}
			return s
		},
		// Jittery confidences around a slow sine drift.
		"noisy": func(tick int) core.ScoreSample {
			base := 0.75 + 0.2*math.Sin(float64(tick)/15.0)
			return sample(
				core.Clamp(base+0.1*rng.NormFloat64()),
				core.Clamp(base+0.1*rng.NormFloat64()),
				core.Clamp(base+0.1*rng.NormFloat64()),
			)
		},
	}

	run, ok := scenarios[*name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", *name)
		os.Exit(1)
	}

	agg := aggregator.New(cfg)
	machine := enforcement.New("harness", cfg)
	trust := core.NewTrustState()

	fmt.Printf("scenario=%s ticks=%d alpha=%.2f weights=%.2f/%.2f/%.2f\n\n",
		*name, *ticks, cfg.Alpha,
		cfg.Weights.Face, cfg.Weights.Liveness, cfg.Weights.Behavior)

	transitions := 0
	for tick := 0; tick < *ticks; tick++ {
		s := run(tick)
		s.CapturedAt = time.Now()

		trust = agg.Update(trust, s)
		if tr := machine.Evaluate(trust.EMAValue); tr != nil {
			transitions++
			fmt.Printf("tick %3d  instant=%.3f ema=%.3f  %s -> %s\n",
				tick, trust.LastInstant, trust.EMAValue, tr.From, tr.To)
		}
	}

	fmt.Printf("\nfinal: state=%s ema=%.3f transitions=%d\n",
		machine.State(), trust.EMAValue, transitions)
}

func sample(face, liveness, behavior float64) core.ScoreSample {
	return core.ScoreSample{
		Face:     core.Float64Ptr(face),
		Liveness: core.Float64Ptr(liveness),
		Behavior: core.Float64Ptr(behavior),
	}
}
