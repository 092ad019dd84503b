// Package rag implements the RAG Query Service: a question-answering
// pipeline over the vector store's per-conversation memory, independent of
// the Mission Executor.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

const (
	topK         = 7
	noContextMsg = "no context found"
)

// RagUnavailable is returned when the embedding call or the vector store
// query fails; the caller should surface this to the user rather than
// treat it as fatal.
type RagUnavailable struct {
	Reason string
	Err    error
}

func (e *RagUnavailable) Error() string {
	return fmt.Sprintf("rag unavailable: %s: %v", e.Reason, e.Err)
}

func (e *RagUnavailable) Unwrap() error { return e.Err }

// Answer is the result of one Ask call.
type Answer struct {
	Text    string
	Sources []string
}

// Service answers questions by retrieving conversation-scoped context from
// the vector store and asking the LLM Gateway to synthesize it. Built as a
// plain struct over its three collaborators rather than a functional-options
// builder, since there are no optional knobs here.
type Service struct {
	Embedder embedding.Embedder
	VectorDB vectorstore.VectorStore
	Gateway  *llm.Gateway
}

// New builds a Service over its three collaborators.
func New(embedder embedding.Embedder, store vectorstore.VectorStore, gateway *llm.Gateway) *Service {
	return &Service{Embedder: embedder, VectorDB: store, Gateway: gateway}
}

// Ask answers question using only context scoped to conversationID. It
// returns a fixed "no context found" answer with no sources when retrieval
// comes back empty, rather than asking the LLM Gateway with no evidence.
func (s *Service) Ask(ctx context.Context, question string, conversationID int64) (Answer, error) {
	vectors, err := s.Embedder.EmbedBatch(ctx, []string{question})
	if err != nil || len(vectors) == 0 {
		return Answer{}, &RagUnavailable{Reason: "embedding the question failed", Err: err}
	}

	filter := map[string]string{"conversation_id": fmt.Sprintf("%d", conversationID)}
	results, err := s.VectorDB.Query(ctx, vectors[0], topK, filter)
	if err != nil {
		return Answer{}, &RagUnavailable{Reason: "vector store query failed", Err: err}
	}
	if len(results) == 0 {
		return Answer{Text: noContextMsg}, nil
	}

	contextText := buildContext(results)
	prompt := fmt.Sprintf("Based on this context, answer: %s\n\nCONTEXT:\n%s", question, contextText)
	answer, err := s.Gateway.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 1024, Temperature: 0.2})
	if err != nil {
		return Answer{}, fmt.Errorf("rag: synthesis failed: %w", err)
	}

	return Answer{Text: answer, Sources: distinctTitles(results)}, nil
}

func buildContext(results []vectorstore.Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if text := r.Metadata["text"]; text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n---\n")
}

func distinctTitles(results []vectorstore.Result) []string {
	seen := make(map[string]bool, len(results))
	titles := make([]string, 0, len(results))
	for _, r := range results {
		title := r.Metadata["title"]
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		titles = append(titles, title)
	}
	return titles
}
