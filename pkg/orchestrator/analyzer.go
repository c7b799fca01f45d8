package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
)

// Candidate is one ranked agent suggestion the Hybrid Analyzer
// produces for a Query.
type Candidate struct {
	Kind       AgentKind
	Confidence float64 // 0.0-1.0
}

// Analyzer implements the Hybrid Analyzer: given a
// query, produce an ordered list of candidate agent kinds with confidence
// scores, using the LLM itself with a fixed rubric prompt, falling back to
// a static priority list if the LLM is unavailable. No hard-coded keyword
// rules.
type Analyzer struct {
	llm       provider.Provider // nil disables the LLM path entirely
	available []AvailableAgent
}

// AvailableAgent describes one registered agent for the rubric prompt: its
// kind, name, and a human-readable description of what it's good for.
type AvailableAgent struct {
	Kind        AgentKind
	Name        string
	Description string
}

// NewAnalyzer constructs an Analyzer over the currently registered agents.
// llm may be nil, in which case Analyze always uses the static fallback.
func NewAnalyzer(llm provider.Provider, available []AvailableAgent) *Analyzer {
	return &Analyzer{llm: llm, available: available}
}

// Analyze ranks the available agents for query. It always returns at
// least one candidate: on any LLM failure — unavailable
// provider, malformed response, empty ranking — it falls back to
// PriorityOrder filtered to the kinds actually registered.
func (a *Analyzer) Analyze(ctx context.Context, query Query) []Candidate {
	if a.llm == nil || len(a.available) == 0 {
		return a.staticFallback()
	}

	candidates, err := a.rankWithLLM(ctx, query)
	if err != nil || len(candidates) == 0 {
		slog.Warn("[Analyzer] LLM ranking unavailable, using static priority fallback", "error", err)
		return a.staticFallback()
	}
	return candidates
}

// staticFallback returns PriorityOrder restricted to registered kinds,
// each with a descending synthetic confidence so ties still break in
// priority order downstream.
func (a *Analyzer) staticFallback() []Candidate {
	registered := make(map[AgentKind]bool, len(a.available))
	for _, ag := range a.available {
		registered[ag.Kind] = true
	}

	var out []Candidate
	n := len(PriorityOrder)
	for i, kind := range PriorityOrder {
		if !registered[kind] {
			continue
		}
		out = append(out, Candidate{Kind: kind, Confidence: float64(n-i) / float64(n)})
	}
	if len(out) == 0 {
		// No registered agent matches the known kinds at all; still
		// satisfy "returns at least one candidate" using whatever's
		// registered, arbitrary order.
		for _, ag := range a.available {
			out = append(out, Candidate{Kind: ag.Kind, Confidence: 0.5})
		}
	}
	return out
}

// rubricSystemPrompt is the fixed rubric: enumerate available agents and their
// descriptions, ask for a ranked selection with justification. The model
// is asked to reply in a strict "kind:confidence:justification" line
// format so parsing doesn't need a JSON schema round trip for something
// this simple.
const rubricSystemPrompt = `You are selecting which specialized agents should handle a user's request.
Rank the available agents from most to least relevant to the query. For each
agent you include, reply on its own line as:

kind:confidence:justification

where kind is one of the listed agent kinds, confidence is a number between
0 and 1, and justification is a short phrase. Only include agents that are
at least somewhat relevant. Do not include any other text.`

func (a *Analyzer) rankWithLLM(ctx context.Context, query Query) ([]Candidate, error) {
	var sb strings.Builder
	sb.WriteString("Available agents:\n")
	for _, ag := range a.available {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", ag.Kind, ag.Name, ag.Description)
	}
	fmt.Fprintf(&sb, "\nUser query: %s\n", query.Text)

	messages := []chat.Message{
		{Role: chat.MessageRoleSystem, Content: rubricSystemPrompt},
		{Role: chat.MessageRoleUser, Content: sb.String()},
	}

	text, _, err := provider.Complete(ctx, a.llm, messages, nil)
	if err != nil {
		return nil, err
	}

	return parseRubricResponse(text, a.available), nil
}

func parseRubricResponse(text string, available []AvailableAgent) []Candidate {
	known := make(map[AgentKind]bool, len(available))
	for _, ag := range available {
		known[ag.Kind] = true
	}

	var out []Candidate
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			continue
		}
		kind := AgentKind(strings.ToLower(strings.TrimSpace(parts[0])))
		if !known[kind] {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		out = append(out, Candidate{Kind: kind, Confidence: conf})
	}

	rank := make(map[AgentKind]int, len(PriorityOrder))
	for i, k := range PriorityOrder {
		rank[k] = len(PriorityOrder) - i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return rank[out[i].Kind] > rank[out[j].Kind]
	})
	return out
}
