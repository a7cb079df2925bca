package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
)

func TestBuildArgs_Order(t *testing.T) {
	p := params.ModelParams{
		Temperature:   0.7,
		MaxTokens:     256,
		TopP:          0.9,
		ContextSize:   2048,
		RepeatPenalty: 1.1,
		Seed:          params.RandomSeed,
	}

	got := BuildArgs("/models/phi3.gguf", "User: hi\nAssistant:", p)

	want := []string{
		"-m", "/models/phi3.gguf",
		"-p", "User: hi\nAssistant:",
		"-c", "2048",
		"-n", "256",
		"--temp", "0.7",
		"--top-p", "0.9",
		"--repeat-penalty", "1.1",
		"--no-display-prompt",
	}
	assert.Equal(t, want, got)
}

func TestBuildArgs_Seed(t *testing.T) {
	p := params.Defaults()
	p.Seed = 42

	got := BuildArgs("m.gguf", "prompt", p)

	assert.Equal(t, []string{"--no-display-prompt", "--seed", "42"}, got[len(got)-3:])
}

func TestBuildArgs_ZeroSeedIsExplicit(t *testing.T) {
	p := params.Defaults()
	p.Seed = 0

	got := BuildArgs("m.gguf", "prompt", p)

	assert.Equal(t, []string{"--seed", "0"}, got[len(got)-2:])
}

func TestBuildArgs_RandomSeedOmitted(t *testing.T) {
	got := BuildArgs("m.gguf", "prompt", params.Defaults())

	assert.NotContains(t, got, FlagSeed)
	assert.Equal(t, FlagNoDisplayPrompt, got[len(got)-1])
}

func TestBuildArgs_FloatFormatting(t *testing.T) {
	p := params.Defaults()
	p.Temperature = 1
	p.TopP = 0.95
	p.RepeatPenalty = 1.25

	got := BuildArgs("m.gguf", "prompt", p)

	assert.Equal(t, "1", got[9])
	assert.Equal(t, "0.95", got[11])
	assert.Equal(t, "1.25", got[13])
}
