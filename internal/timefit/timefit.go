// Package timefit plans how a synthesized clip is reshaped to occupy its
// segment's time slot. Planning is pure; execution happens through the
// ffmpeg runner using the plan's filter expression.
package timefit

import (
	"fmt"
	"strconv"
	"strings"

	"dubber/internal/services"
)

// Action names the strategy a plan applies.
type Action string

const (
	// ActionKeep leaves the clip untouched; it already fits the slot.
	ActionKeep Action = "keep"
	// ActionTempo reshapes the clip with an atempo chain only.
	ActionTempo Action = "tempo"
	// ActionTempoTrim speeds the clip to the tempo ceiling and hard-trims
	// the remainder with a fade-out.
	ActionTempoTrim Action = "tempo_trim"
	// ActionTempoPad slows the clip to the stretch floor and pads the
	// remaining slot with silence.
	ActionTempoPad Action = "tempo_pad"
)

// atempo's documented per-operation range.
const (
	atempoOpMin = 0.5
	atempoOpMax = 2.0
)

// Config bounds how aggressively clips are reshaped.
type Config struct {
	// ToleranceLow and ToleranceHigh bracket the duration ratios accepted
	// without any processing.
	ToleranceLow  float64
	ToleranceHigh float64
	// MinStretch is the slowest overall tempo applied when a clip runs
	// short; below it the slot is padded with silence instead.
	MinStretch float64
	// MaxTempo is the fastest overall tempo applied when a clip runs
	// long; above it the clip is trimmed with a fade.
	MaxTempo float64
	// MaxChain caps the number of chained atempo operations.
	MaxChain int
	// FadeSeconds is the fade-out applied when trimming.
	FadeSeconds float64
}

// DefaultConfig mirrors the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		ToleranceLow:  0.95,
		ToleranceHigh: 1.05,
		MinStretch:    0.75,
		MaxTempo:      2.3,
		MaxChain:      3,
		FadeSeconds:   0.05,
	}
}

// Plan describes the reshaping of one clip into one slot.
type Plan struct {
	Action        Action
	Ratio         float64
	TempoFactors  []float64
	TrimTo        float64
	PadSeconds    float64
	FinalDuration float64

	fadeSeconds float64
}

// NeedsProcessing reports whether the plan requires an ffmpeg pass.
func (p Plan) NeedsProcessing() bool {
	return p.Action != ActionKeep
}

// FilterExpr renders the plan as a single -filter:a expression so each
// segment costs at most one ffmpeg invocation.
func (p Plan) FilterExpr() string {
	var parts []string
	for _, factor := range p.TempoFactors {
		parts = append(parts, "atempo="+strconv.FormatFloat(factor, 'f', 4, 64))
	}
	switch p.Action {
	case ActionTempoTrim:
		fade := p.FinalDuration - p.TrimFadeSeconds()
		if fade < 0 {
			fade = 0
		}
		parts = append(parts,
			fmt.Sprintf("atrim=0:%s", formatSeconds(p.TrimTo)),
			fmt.Sprintf("afade=t=out:st=%s:d=%s", formatSeconds(fade), formatSeconds(p.TrimFadeSeconds())),
		)
	case ActionTempoPad:
		if p.PadSeconds > 0 {
			parts = append(parts, fmt.Sprintf("apad=pad_dur=%s", formatSeconds(p.PadSeconds)))
		}
	}
	return strings.Join(parts, ",")
}

// TrimFadeSeconds is the fade length used when the plan trims.
func (p Plan) TrimFadeSeconds() float64 {
	fade := p.fadeSeconds
	if fade <= 0 {
		fade = DefaultConfig().FadeSeconds
	}
	if fade > p.TrimTo {
		fade = p.TrimTo
	}
	return fade
}

// NewPlan decides how clipDuration seconds of synthesized speech fits a
// slotDuration second window.
func NewPlan(cfg Config, clipDuration, slotDuration float64) (Plan, error) {
	if clipDuration <= 0 {
		return Plan{}, services.Wrap(services.ErrValidation, "timefit", "plan", "clip duration must be positive", nil)
	}
	if slotDuration <= 0 {
		return Plan{}, services.Wrap(services.ErrValidation, "timefit", "plan", "slot duration must be positive", nil)
	}
	if cfg.MaxChain <= 0 {
		cfg.MaxChain = DefaultConfig().MaxChain
	}
	if cfg.FadeSeconds <= 0 {
		cfg.FadeSeconds = DefaultConfig().FadeSeconds
	}

	ratio := clipDuration / slotDuration
	plan := Plan{Ratio: ratio, fadeSeconds: cfg.FadeSeconds}

	switch {
	case ratio >= cfg.ToleranceLow && ratio <= cfg.ToleranceHigh:
		plan.Action = ActionKeep
		plan.FinalDuration = clipDuration

	case ratio > cfg.ToleranceHigh:
		tempo := ratio
		if tempo > cfg.MaxTempo {
			tempo = cfg.MaxTempo
		}
		factors, err := chainTempo(tempo, cfg.MaxChain)
		if err != nil {
			return Plan{}, err
		}
		plan.TempoFactors = factors
		adjusted := clipDuration / tempo
		if ratio > cfg.MaxTempo {
			plan.Action = ActionTempoTrim
			plan.TrimTo = slotDuration
			plan.FinalDuration = slotDuration
		} else {
			plan.Action = ActionTempo
			plan.FinalDuration = adjusted
		}

	default: // ratio < cfg.ToleranceLow
		tempo := ratio
		if tempo < cfg.MinStretch {
			tempo = cfg.MinStretch
		}
		factors, err := chainTempo(tempo, cfg.MaxChain)
		if err != nil {
			return Plan{}, err
		}
		plan.TempoFactors = factors
		adjusted := clipDuration / tempo
		if ratio < cfg.MinStretch {
			plan.Action = ActionTempoPad
			plan.PadSeconds = slotDuration - adjusted
			if plan.PadSeconds < 0 {
				plan.PadSeconds = 0
			}
			plan.FinalDuration = slotDuration
		} else {
			plan.Action = ActionTempo
			plan.FinalDuration = adjusted
		}
	}

	return plan, nil
}

// chainTempo decomposes an overall tempo into factors that each respect
// atempo's per-operation range.
func chainTempo(tempo float64, maxChain int) ([]float64, error) {
	if tempo <= 0 {
		return nil, services.Wrap(services.ErrValidation, "timefit", "chain tempo", "tempo must be positive", nil)
	}
	var factors []float64
	remaining := tempo
	for remaining > atempoOpMax {
		factors = append(factors, atempoOpMax)
		remaining /= atempoOpMax
	}
	for remaining < atempoOpMin {
		factors = append(factors, atempoOpMin)
		remaining /= atempoOpMin
	}
	if remaining < 0.9999 || remaining > 1.0001 {
		factors = append(factors, remaining)
	}
	if len(factors) == 0 {
		factors = []float64{1.0}
	}
	if len(factors) > maxChain {
		return nil, services.Wrap(services.ErrValidation, "timefit", "chain tempo",
			fmt.Sprintf("tempo %0.3f needs %d operations, cap is %d", tempo, len(factors), maxChain), nil)
	}
	return factors, nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
