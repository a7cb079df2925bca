package llm

import (
	"strconv"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/params"
)

// Command-line flags understood by the llama.cpp style executable.
const (
	FlagModel           = "-m"
	FlagPrompt          = "-p"
	FlagContextSize     = "-c"
	FlagMaxTokens       = "-n"
	FlagTemperature     = "--temp"
	FlagTopP            = "--top-p"
	FlagRepeatPenalty   = "--repeat-penalty"
	FlagNoDisplayPrompt = "--no-display-prompt"
	FlagSeed            = "--seed"
)

// BuildArgs returns the argument vector for one run. The order is fixed:
// the executable's parser is not assumed to accept any other.
// The seed flag is only emitted for an explicit seed.
func BuildArgs(modelPath, prompt string, p params.ModelParams) []string {
	args := []string{
		FlagModel, modelPath,
		FlagPrompt, prompt,
		FlagContextSize, strconv.Itoa(p.ContextSize),
		FlagMaxTokens, strconv.Itoa(p.MaxTokens),
		FlagTemperature, formatFloat(p.Temperature),
		FlagTopP, formatFloat(p.TopP),
		FlagRepeatPenalty, formatFloat(p.RepeatPenalty),
		FlagNoDisplayPrompt,
	}
	if p.Seed != params.RandomSeed {
		args = append(args, FlagSeed, strconv.Itoa(p.Seed))
	}
	return args
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
