package service

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/creach-t/phi3-chat-interface-sub000/internal/llm/llmtest"
)

func TestMain(m *testing.M) {
	llmtest.MaybeRun()
	goleak.VerifyTestMain(m)
}
