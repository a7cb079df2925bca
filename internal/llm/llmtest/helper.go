// Package llmtest turns the running test binary into a fake generation
// executable, so supervisor and service tests can drive a real child process
// without a model installed.
//
// A test package opts in from TestMain:
//
//	func TestMain(m *testing.M) {
//		llmtest.MaybeRun()
//		os.Exit(m.Run())
//	}
//
// and supervises Binary() with Env() added to the child environment. The
// child reads the user message out of the -p argument and treats it as a
// script: "close <text>", "stop <text>", "chunks <n>", "repeat <n> <word>",
// "split", "fail <text>", "crash <text>", "stubborn", "args", or "raw <text>".
package llmtest

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const helperEnv = "PHI3_LLM_HELPER"

// ChunkGap is the pause between two writes the fake executable makes, long
// enough for each write to arrive as its own read.
const ChunkGap = 40 * time.Millisecond

// ArgSeparator separates arguments echoed by the "args" script.
const ArgSeparator = "\x1f"

// Env returns the environment entry that activates the fake executable.
func Env() string {
	return helperEnv + "=1"
}

// Binary returns the executable to supervise.
func Binary() string {
	return os.Args[0]
}

// MaybeRun runs the fake executable and exits when the environment switch is
// set. It returns immediately otherwise.
func MaybeRun() {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	script := message(args)
	cmd, rest, _ := strings.Cut(script, " ")

	switch cmd {
	case "close":
		write(rest)
		return 0

	case "stop":
		write(rest)
		time.Sleep(ChunkGap)
		write("\nUser:")
		hang()

	case "chunks":
		n, _ := strconv.Atoi(rest)
		for i := 0; i < n; i++ {
			if i > 0 {
				time.Sleep(ChunkGap)
			}
			write(fmt.Sprintf("tok%d ", i))
		}
		hang()

	case "repeat":
		countStr, word, _ := strings.Cut(rest, " ")
		n, _ := strconv.Atoi(countStr)
		for i := 0; i < n; i++ {
			if i > 0 {
				time.Sleep(ChunkGap)
			}
			write(word + " ")
		}
		return 0

	case "split":
		write("Bonjour\nUs")
		time.Sleep(ChunkGap)
		write("er: la suite")
		time.Sleep(ChunkGap)
		return 0

	case "fail":
		fmt.Fprint(os.Stderr, rest)
		return 3

	case "crash":
		write(rest)
		fmt.Fprint(os.Stderr, "ggml_abort: out of memory")
		return 1

	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		write("done>")
		hang()

	case "args":
		write(strings.Join(args, ArgSeparator))
		return 0

	case "raw":
		write(rest)
		hang()
	}

	write(script)
	return 0
}

// message extracts the user message from the prompt passed with -p.
func message(args []string) string {
	var prompt string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-p" {
			prompt = args[i+1]
			break
		}
	}

	if i := strings.LastIndex(prompt, "User: "); i >= 0 {
		prompt = prompt[i+len("User: "):]
	}
	prompt, _, _ = strings.Cut(prompt, "\nAssistant:")
	return prompt
}

func write(s string) {
	os.Stdout.WriteString(s)
}

func hang() {
	time.Sleep(time.Hour)
	os.Exit(0)
}
