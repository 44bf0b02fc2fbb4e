package service

import (
	"context"
	"errors"
	"testing"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/vo"
)

type fakeLLMGateway struct {
	available bool
	response  string
	err       error
}

func (f fakeLLMGateway) Available() bool { return f.available }
func (f fakeLLMGateway) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func testOptions() vo.Options {
	return vo.Options{TargetCount: 3, MinSec: 10, MaxSec: 30, Language: "en"}
}

func segments() []entity.TranscriptSegment {
	return []entity.TranscriptSegment{
		{Start: 0, End: 8, Text: "cold open line that should be penalized."},
		{Start: 8, End: 20, Text: "a strong hook that keeps going for a while here."},
		{Start: 20, End: 40, Text: "short line"},
		{Start: 40, End: 70, Text: "a long surprising turn with a clear payoff at the very end."},
		{Start: 70, End: 90, Text: "closing remark to wrap things up nicely."},
	}
}

func TestSelect_LLMStrategySucceeds(t *testing.T) {
	llm := fakeLLMGateway{
		available: true,
		response: `[{"start":8,"end":20,"reason":"hook"},` +
			`{"start":40,"end":70,"reason":"payoff"},` +
			`{"start":70,"end":90,"reason":"close"}]`,
	}
	sel := NewSelector(llm)

	out, err := sel.Select(context.Background(), entity.Transcript{Segments: segments()}, testOptions(), 90, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out.Ranges) != 3 {
		t.Fatalf("expected 3 ranges, got %d", len(out.Ranges))
	}
	for _, r := range out.Ranges {
		if r.Method != vo.MethodLLM {
			t.Errorf("expected method llm, got %s", r.Method)
		}
	}
	for i := 1; i < len(out.Ranges); i++ {
		if out.Ranges[i].Start < out.Ranges[i-1].Start {
			t.Fatalf("ranges not chronological: %+v", out.Ranges)
		}
	}
}

func TestSelect_LLMPartialSuccessPadsWithRuleBased(t *testing.T) {
	llm := fakeLLMGateway{
		available: true,
		response: `[{"start":8,"end":20,"reason":"hook"},` +
			`{"start":40,"end":70,"reason":"payoff"},` +
			`{"start":70,"end":90,"reason":"close"}]`,
	}
	sel := NewSelector(llm)
	opts := testOptions()
	opts.TargetCount = 4

	out, err := sel.Select(context.Background(), entity.Transcript{Segments: segments()}, opts, 90, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out.Ranges) != 4 {
		t.Fatalf("expected the 3 llm ranges plus 1 rule-based padding range, got %d: %+v", len(out.Ranges), out.Ranges)
	}
	sawLLM, sawRule := false, false
	for _, r := range out.Ranges {
		switch r.Method {
		case vo.MethodLLM:
			sawLLM = true
		case vo.MethodRule:
			sawRule = true
		}
	}
	if !sawLLM {
		t.Error("expected at least one llm-tagged range to survive padding")
	}
	if !sawRule {
		t.Error("expected a rule-tagged padding range")
	}
}

func TestSelect_LLMUnavailableFallsBackToRuleBased(t *testing.T) {
	sel := NewSelector(fakeLLMGateway{available: false})

	out, err := sel.Select(context.Background(), entity.Transcript{Segments: segments()}, testOptions(), 90, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out.Ranges) < vo.MinGuaranteed {
		t.Fatalf("expected at least %d ranges, got %d", vo.MinGuaranteed, len(out.Ranges))
	}
	for _, r := range out.Ranges {
		if r.Method != vo.MethodRule {
			t.Errorf("expected method rule, got %s", r.Method)
		}
		if r.Duration() < testOptions().MinSec || r.Duration() > testOptions().MaxSec {
			t.Errorf("range duration %v outside [%v,%v]", r.Duration(), testOptions().MinSec, testOptions().MaxSec)
		}
	}
	for i := 0; i < len(out.Ranges); i++ {
		for j := i + 1; j < len(out.Ranges); j++ {
			if out.Ranges[i].Overlaps(out.Ranges[j]) {
				t.Fatalf("ranges overlap: %+v and %+v", out.Ranges[i], out.Ranges[j])
			}
		}
	}
}

func TestSelect_ForceRuleBasedSkipsLLM(t *testing.T) {
	llm := fakeLLMGateway{available: true, response: `[{"start":0,"end":100,"reason":"whole video"}]`}
	sel := NewSelector(llm)
	opts := testOptions()
	opts.ForceRuleBased = true

	out, err := sel.Select(context.Background(), entity.Transcript{Segments: segments()}, opts, 90, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, r := range out.Ranges {
		if r.Method == vo.MethodLLM {
			t.Fatalf("force_rule_based must never produce an llm-tagged range: %+v", r)
		}
	}
}

func TestSelect_EmptyTranscriptUsesHardFallback(t *testing.T) {
	sel := NewSelector(fakeLLMGateway{available: true})

	out, err := sel.Select(context.Background(), entity.Transcript{}, testOptions(), 120, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out.Ranges) != 3 {
		t.Fatalf("expected exactly 3 hard-fallback ranges, got %d", len(out.Ranges))
	}
	for _, r := range out.Ranges {
		if r.Method != vo.MethodFallback {
			t.Errorf("expected method fallback, got %s", r.Method)
		}
		if r.Start < 0 || r.End > 120 {
			t.Errorf("fallback range out of source bounds: %+v", r)
		}
	}
}

func TestSelect_LLMNetworkErrorFallsBack(t *testing.T) {
	sel := NewSelector(fakeLLMGateway{available: true, err: errors.New("connection refused")})

	out, err := sel.Select(context.Background(), entity.Transcript{Segments: segments()}, testOptions(), 90, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out.Ranges) < vo.MinGuaranteed {
		t.Fatalf("expected rule-based fallback to produce at least %d ranges, got %d", vo.MinGuaranteed, len(out.Ranges))
	}
}

func TestSelect_LLMMalformedJSONFallsBack(t *testing.T) {
	sel := NewSelector(fakeLLMGateway{available: true, response: "not json at all"})

	out, err := sel.Select(context.Background(), entity.Transcript{Segments: segments()}, testOptions(), 90, "trace", "job")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out.Ranges) < vo.MinGuaranteed {
		t.Fatalf("expected rule-based fallback, got %d ranges", len(out.Ranges))
	}
}

func TestParseLLMResponse_StripsMarkdownFence(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"start\":1,\"end\":2,\"reason\":\"x\"}]\n```\nthanks"
	candidates, err := parseLLMResponse(raw)
	if err != nil {
		t.Fatalf("parseLLMResponse: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Start != 1 || candidates[0].End != 2 {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
}

func TestPostValidateLLM_RejectsOutOfRangeDuration(t *testing.T) {
	opts := testOptions()
	candidates := []llmCandidate{
		{Start: 0, End: 1, Reason: "too short"},
		{Start: 8, End: 20, Reason: "ok"},
	}
	out := postValidateLLM(candidates, entity.Transcript{Segments: segments()}, opts)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving range, got %d: %+v", len(out), out)
	}
}

func TestPostValidateLLM_DropsOverlaps(t *testing.T) {
	opts := testOptions()
	candidates := []llmCandidate{
		{Start: 8, End: 20, Reason: "first"},
		{Start: 10, End: 22, Reason: "overlaps first"},
	}
	out := postValidateLLM(candidates, entity.Transcript{Segments: segments()}, opts)
	if len(out) != 1 {
		t.Fatalf("expected overlap to be dropped, got %d: %+v", len(out), out)
	}
	if out[0].Reason != "first" {
		t.Fatalf("expected the earliest-starting range to win, got %+v", out[0])
	}
}
