package risk

import (
	"main/internal/model"

	"github.com/yanun0323/logs"
)

// neutralScore is reported when the book is too shallow to judge.
const neutralScore = 50.0

// scoreDepthLevels is the per-side depth required by the score formula.
const scoreDepthLevels = 5

// Regime is the discrete market risk state driving spread selection.
type Regime uint8

const (
	_regime_beg Regime = iota
	RegimeLow
	RegimeMedium
	RegimeHigh
	_regime_end
)

func (r Regime) IsAvailable() bool {
	return r > _regime_beg && r < _regime_end
}

func (r Regime) String() string {
	switch r {
	case RegimeLow:
		return "low"
	case RegimeMedium:
		return "medium"
	case RegimeHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Band is the quoting spread bound triple a regime maps to, in basis points.
type Band struct {
	TargetBps float64
	MinBps    float64
	MaxBps    float64
}

// Config tunes smoothing, hysteresis thresholds and the regime bands. The
// weighting constants of the raw score were tuned empirically and are fixed.
type Config struct {
	// EMADecay is the weight of the newest raw score in the smoothed value,
	// in (0, 1]. 1 disables smoothing.
	EMADecay float64

	// EnterMedium / ExitMedium are the low<->medium hysteresis thresholds.
	// The upward threshold must exceed the downward one.
	EnterMedium float64
	ExitMedium  float64

	// EnterHigh / ExitHigh are the medium<->high hysteresis thresholds.
	EnterHigh float64
	ExitHigh  float64

	LowBand    Band
	MediumBand Band
	HighBand   Band
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		EMADecay:    0.3,
		EnterMedium: 25,
		ExitMedium:  20,
		EnterHigh:   60,
		ExitHigh:    50,
		LowBand:     Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10},
		MediumBand:  Band{TargetBps: 15, MinBps: 12, MaxBps: 25},
		HighBand:    Band{TargetBps: 30, MinBps: 25, MaxBps: 50},
	}
}

// Engine smooths raw market-risk scores and selects the quoting regime with
// hysteresis so scores hovering near one boundary cannot flip it back and
// forth.
type Engine struct {
	cfg      Config
	smoothed float64
	primed   bool
	regime   Regime
}

// NewEngine creates an engine starting in the low regime.
func NewEngine(cfg Config) *Engine {
	if cfg.EMADecay <= 0 || cfg.EMADecay > 1 {
		cfg.EMADecay = DefaultConfig().EMADecay
	}

	return &Engine{
		cfg:    cfg,
		regime: RegimeLow,
	}
}

// Score computes the raw market risk in [0, 100] from one depth snapshot.
// It needs at least five levels per side; shallower books rate neutral.
//
//	score = 2*spreadBps
//	      + 25*(1 - min(bidVol5, askVol5)/max(bidVol5, askVol5))
//	      + 0.5*min(avgDepthSpanBps, 50)
func Score(depth model.Depth) float64 {
	if len(depth.Bids) < scoreDepthLevels || len(depth.Asks) < scoreDepthLevels {
		return neutralScore
	}

	mid, ok := depth.MidPrice()
	if !ok || mid <= 0 {
		return neutralScore
	}

	spreadBps, ok := depth.SpreadBps()
	if !ok {
		return neutralScore
	}

	var bidVol, askVol, spanSum float64
	for i := 0; i < scoreDepthLevels; i++ {
		bidVol += depth.Bids[i].Quantity
		askVol += depth.Asks[i].Quantity

		bidSpan := (mid - depth.Bids[i].Price) / mid * 10000
		askSpan := (depth.Asks[i].Price - mid) / mid * 10000
		if bidSpan < 0 {
			bidSpan = -bidSpan
		}
		if askSpan < 0 {
			askSpan = -askSpan
		}
		spanSum += bidSpan + askSpan
	}

	maxVol := bidVol
	minVol := askVol
	if askVol > bidVol {
		maxVol, minVol = askVol, bidVol
	}
	if maxVol <= 0 {
		return neutralScore
	}

	avgSpan := spanSum / (2 * scoreDepthLevels)
	if avgSpan > 50 {
		avgSpan = 50
	}

	score := 2*spreadBps + 25*(1-minVol/maxVol) + 0.5*avgSpan
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Update folds one raw score into the smoothed value and applies the
// hysteresis regime selection. A single update moves the regime at most one
// step.
func (e *Engine) Update(raw float64) Regime {
	if !e.primed {
		e.smoothed = raw
		e.primed = true
	} else {
		e.smoothed = e.cfg.EMADecay*raw + (1-e.cfg.EMADecay)*e.smoothed
	}

	prev := e.regime
	switch e.regime {
	case RegimeLow:
		if e.smoothed >= e.cfg.EnterMedium {
			e.regime = RegimeMedium
		}
	case RegimeMedium:
		switch {
		case e.smoothed >= e.cfg.EnterHigh:
			e.regime = RegimeHigh
		case e.smoothed < e.cfg.ExitMedium:
			e.regime = RegimeLow
		}
	case RegimeHigh:
		if e.smoothed < e.cfg.ExitHigh {
			e.regime = RegimeMedium
		}
	default:
		e.regime = RegimeLow
	}

	if e.regime != prev {
		logs.Infof("risk regime changed: %s -> %s, smoothed score %.2f", prev, e.regime, e.smoothed)
	}
	return e.regime
}

// Regime returns the current regime.
func (e *Engine) Regime() Regime {
	return e.regime
}

// Smoothed returns the current smoothed score.
func (e *Engine) Smoothed() float64 {
	return e.smoothed
}

// Band returns the spread bounds of the current regime.
func (e *Engine) Band() Band {
	switch e.regime {
	case RegimeMedium:
		return e.cfg.MediumBand
	case RegimeHigh:
		return e.cfg.HighBand
	default:
		return e.cfg.LowBand
	}
}
