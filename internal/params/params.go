// Package params defines the generation parameters accepted by the local model
// executable, their validated ranges, and the clamping rules applied to
// caller-supplied values.
package params

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Recognized parameter names, as they appear in request bodies and preset files.
const (
	Temperature   = "temperature"
	MaxTokens     = "maxTokens"
	TopP          = "topP"
	ContextSize   = "contextSize"
	RepeatPenalty = "repeatPenalty"
	Seed          = "seed"
)

// RandomSeed means "let the executable pick a seed"; the seed flag is omitted.
const RandomSeed = -1

const (
	// MinTimeout is the floor for a generation deadline.
	MinTimeout = 30 * time.Second

	// PerTokenTimeout is the deadline budget granted per requested token.
	PerTokenTimeout = 100 * time.Millisecond
)

// Range is a closed [Min, Max] interval.
type Range struct {
	Min float64
	Max float64
}

// Clamp constrains v to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Limits maps each recognized parameter to its allowed range.
var Limits = map[string]Range{
	Temperature:   {Min: 0.1, Max: 2.0},
	MaxTokens:     {Min: 1, Max: 4096},
	TopP:          {Min: 0.1, Max: 1.0},
	ContextSize:   {Min: 512, Max: 8192},
	RepeatPenalty: {Min: 1.0, Max: 2.0},
	Seed:          {Min: RandomSeed, Max: math.MaxInt32},
}

// ModelParams is a complete, validated parameter set for one generation run.
type ModelParams struct {
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"maxTokens"`
	TopP          float64 `json:"topP"`
	ContextSize   int     `json:"contextSize"`
	RepeatPenalty float64 `json:"repeatPenalty"`
	Seed          int     `json:"seed"`
}

// Defaults returns the parameters used when nothing else is configured.
func Defaults() ModelParams {
	return ModelParams{
		Temperature:   0.7,
		MaxTokens:     512,
		TopP:          0.9,
		ContextSize:   2048,
		RepeatPenalty: 1.1,
		Seed:          RandomSeed,
	}
}

// Clamp returns a copy of p with every field constrained to its range.
func (p ModelParams) Clamp() ModelParams {
	return ModelParams{
		Temperature:   Limits[Temperature].Clamp(p.Temperature),
		MaxTokens:     int(Limits[MaxTokens].Clamp(float64(p.MaxTokens))),
		TopP:          Limits[TopP].Clamp(p.TopP),
		ContextSize:   int(Limits[ContextSize].Clamp(float64(p.ContextSize))),
		RepeatPenalty: Limits[RepeatPenalty].Clamp(p.RepeatPenalty),
		Seed:          int(Limits[Seed].Clamp(float64(p.Seed))),
	}
}

// Timeout returns the generation deadline for the given token budget:
// max(30s, maxTokens*100ms).
func Timeout(maxTokens int) time.Duration {
	d := time.Duration(maxTokens) * PerTokenTimeout
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

// Timeout returns the generation deadline for p.
func (p ModelParams) Timeout() time.Duration {
	return Timeout(p.MaxTokens)
}

// Partial holds the subset of parameters a caller supplied, already clamped.
type Partial map[string]float64

// Clamp filters raw caller input down to recognized, numeric parameters and
// constrains each one to its range. Unknown keys and unparseable values are
// dropped, never rejected. An empty result means no valid parameter was given.
func Clamp(input map[string]any) Partial {
	out := make(Partial)
	for key, raw := range input {
		limit, ok := Limits[key]
		if !ok {
			continue
		}

		parse := parseFloat
		if key == Seed {
			parse = parseInt
		}
		v, parsed := parse(raw)
		if !parsed {
			continue
		}

		out[key] = limit.Clamp(v)
	}
	return out
}

// Apply overlays the partial values on base and returns the result.
func (p Partial) Apply(base ModelParams) ModelParams {
	if v, ok := p[Temperature]; ok {
		base.Temperature = v
	}
	if v, ok := p[MaxTokens]; ok {
		base.MaxTokens = int(v)
	}
	if v, ok := p[TopP]; ok {
		base.TopP = v
	}
	if v, ok := p[ContextSize]; ok {
		base.ContextSize = int(v)
	}
	if v, ok := p[RepeatPenalty]; ok {
		base.RepeatPenalty = v
	}
	if v, ok := p[Seed]; ok {
		base.Seed = int(v)
	}
	return base
}

// LoadFile reads a flat JSON object of parameters from path and applies it
// over Defaults. An empty path yields Defaults.
func LoadFile(path string) (ModelParams, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ModelParams{}, fmt.Errorf("reading params file: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ModelParams{}, fmt.Errorf("decoding params file %s: %w", path, err)
	}

	return Clamp(raw).Apply(Defaults()), nil
}

func parseFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v)
	case float32:
		return float64(v), !math.IsNaN(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func parseInt(raw any) (float64, bool) {
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}

	f, ok := parseFloat(raw)
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Trunc(f), true
}
