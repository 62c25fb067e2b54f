package extract_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/powermem-ai/powermem/internal/extract"
	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/provider/llm"
	"github.com/powermem-ai/powermem/pkg/provider/llm/mock"
	"github.com/powermem-ai/powermem/pkg/types"
)

func TestExtract_EmptyConversationYieldsNoCall(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	res := extract.Extract(context.Background(), provider, nil, extract.Options{})

	if len(res.Facts) != 0 {
		t.Errorf("Facts = %v, want empty", res.Facts)
	}
	if res.Warning != nil {
		t.Errorf("Warning = %v, want nil", res.Warning)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("expected 0 LLM calls for empty conversation, got %d", len(provider.CompleteCalls))
	}
}

func TestExtract_OnlySystemMessagesYieldsNoCall(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	messages := []types.Message{{Role: "system", Content: "You are a helpful assistant."}}
	res := extract.Extract(context.Background(), provider, messages, extract.Options{})

	if len(provider.CompleteCalls) != 0 {
		t.Errorf("expected 0 LLM calls, got %d", len(provider.CompleteCalls))
	}
	if res.Warning != nil {
		t.Errorf("Warning = %v, want nil", res.Warning)
	}
}

func TestExtract_ParsesFacts(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"facts": ["prefers window seats", "allergic to peanuts"]}`,
		},
	}
	messages := []types.Message{
		{Role: "user", Content: "Book me a window seat, I'm allergic to peanuts so please flag that too."},
	}
	res := extract.Extract(context.Background(), provider, messages, extract.Options{})

	if res.Warning != nil {
		t.Fatalf("unexpected warning: %v", res.Warning)
	}
	if len(res.Facts) != 2 {
		t.Fatalf("got %d facts, want 2: %v", len(res.Facts), res.Facts)
	}
	if res.Facts[0] != "prefers window seats" || res.Facts[1] != "allergic to peanuts" {
		t.Errorf("unexpected facts: %v", res.Facts)
	}
}

func TestExtract_GreetingYieldsEmptyFacts(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"facts": []}`},
	}
	messages := []types.Message{{Role: "user", Content: "hey there"}}
	res := extract.Extract(context.Background(), provider, messages, extract.Options{})

	if res.Warning != nil {
		t.Fatalf("unexpected warning: %v", res.Warning)
	}
	if len(res.Facts) != 0 {
		t.Errorf("Facts = %v, want empty", res.Facts)
	}
}

func TestExtract_MarkdownFenceStripped(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n" + `{"facts": ["likes jazz"]}` + "\n```",
		},
	}
	messages := []types.Message{{Role: "user", Content: "I really like jazz music."}}
	res := extract.Extract(context.Background(), provider, messages, extract.Options{})

	if res.Warning != nil {
		t.Fatalf("unexpected warning: %v", res.Warning)
	}
	if len(res.Facts) != 1 || res.Facts[0] != "likes jazz" {
		t.Errorf("Facts = %v, want [\"likes jazz\"]", res.Facts)
	}
}

func TestExtract_RetriesOnceOnUnparseableResponse(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "sure, here are the facts: dogs are great"},
	}
	messages := []types.Message{{Role: "user", Content: "I have two dogs."}}
	res := extract.Extract(context.Background(), provider, messages, extract.Options{})

	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("expected 2 LLM calls (1 + 1 retry), got %d", len(provider.CompleteCalls))
	}
	if res.Warning == nil {
		t.Fatal("expected a warning after both attempts fail to parse")
	}
	var typed *errs.Error
	if !errors.As(res.Warning, &typed) {
		t.Fatalf("Warning is not *errs.Error: %v", res.Warning)
	}
	if typed.Kind != errs.KindExtraction {
		t.Errorf("Kind = %v, want %v", typed.Kind, errs.KindExtraction)
	}
	if len(res.Facts) != 0 {
		t.Errorf("Facts = %v, want empty after failed extraction", res.Facts)
	}
}

func TestExtract_RetryRequestCarriesStricterInstruction(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "not json"},
	}
	messages := []types.Message{{Role: "user", Content: "I work as a pilot."}}
	res := extract.Extract(context.Background(), provider, messages, extract.Options{})
	if res.Warning == nil {
		t.Fatal("expected warning since the mock always returns unparseable content")
	}
	if len(provider.CompleteCalls) != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", len(provider.CompleteCalls))
	}

	// Second call must include the stricter retry instruction appended.
	retryReq := provider.CompleteCalls[1].Req
	if len(retryReq.Messages) <= len(provider.CompleteCalls[0].Req.Messages) {
		t.Errorf("retry request should carry more messages than the first attempt")
	}
}

func TestExtract_IncludeRolesFiltersConversation(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"facts": []}`},
	}
	messages := []types.Message{
		{Role: "user", Content: "secret stuff"},
		{Role: "tool", Content: "tool output"},
	}
	extract.Extract(context.Background(), provider, messages, extract.Options{IncludeRoles: []string{"user"}})

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(provider.CompleteCalls))
	}
	userMsg := provider.CompleteCalls[0].Req.Messages[1].Content
	if !strings.Contains(userMsg, "secret stuff") {
		t.Errorf("conversation text missing included role content: %s", userMsg)
	}
	if strings.Contains(userMsg, "tool output") {
		t.Errorf("conversation text should not include excluded role content: %s", userMsg)
	}
}
