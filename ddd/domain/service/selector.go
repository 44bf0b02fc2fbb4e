// Package service holds pure business logic that depends only on other
// domain packages plus narrow ports (gateway.LLMGateway), never on
// infrastructure concerns like subprocesses or HTTP clients directly.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/gateway"
	"clipforge/ddd/domain/vo"
	"clipforge/pkg/logger"
)

// Selector chooses target_count non-overlapping ranges from a transcript,
// trying the LLM strategy first and falling back to rule-based and then
// hard-coded ranges, per spec.md §4.3.
type Selector struct {
	llm gateway.LLMGateway
}

func NewSelector(llm gateway.LLMGateway) *Selector {
	return &Selector{llm: llm}
}

// Select runs Strategy A/B/C in order and returns the resulting Selection.
// sourceDurationSec is only consulted by Strategy C. traceID/jobID are for
// log correlation only.
func (s *Selector) Select(ctx context.Context, transcript entity.Transcript, opts vo.Options, sourceDurationSec float64, traceID, jobID string) (entity.Selection, error) {
	log := logger.WithJob(traceID, jobID, "selecting")
	target := opts.TargetCount

	if ranges, ok := s.tryLLM(ctx, transcript, opts, log); ok {
		if len(ranges) < target {
			padOpts := opts
			padOpts.TargetCount = target - len(ranges)
			padded := s.ruleBased(transcript, padOpts, excludeRanges(ranges))
			ranges = mergeChronological(ranges, padded, target)
		}
		return entity.Selection{Ranges: ranges}, nil
	}

	ranges := s.ruleBased(transcript, opts, nil)
	if len(ranges) >= vo.MinGuaranteed {
		log.Infof("rule-based selection produced %d ranges", len(ranges))
		return entity.Selection{Ranges: ranges}, nil
	}

	log.Warnf("rule-based selection produced only %d ranges, using hard fallback", len(ranges))
	return entity.Selection{Ranges: hardFallback(opts, sourceDurationSec)}, nil
}

// ---------------------------------------------------------------------
// Strategy A — LLM
// ---------------------------------------------------------------------

// tryLLM attempts Strategy A, returning (ranges, true) only when it
// produced at least min_guaranteed valid ranges after post-validation.
func (s *Selector) tryLLM(ctx context.Context, transcript entity.Transcript, opts vo.Options, log *logrus.Entry) ([]entity.SelectionRange, bool) {
	if opts.ForceRuleBased {
		return nil, false
	}
	if len(transcript.Segments) == 0 {
		return nil, false
	}
	if s.llm == nil || !s.llm.Available() {
		return nil, false
	}

	prompt := buildLLMPrompt(transcript, opts)
	raw, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		log.Warnf("llm selection request failed: %v", err)
		return nil, false
	}

	candidates, err := parseLLMResponse(raw)
	if err != nil {
		log.Warnf("llm response not valid JSON: %v", err)
		return nil, false
	}

	ranges := postValidateLLM(candidates, transcript, opts)
	if len(ranges) < vo.MinGuaranteed {
		log.Warnf("llm produced only %d valid ranges after post-validation, falling back", len(ranges))
		return nil, false
	}
	if len(ranges) > opts.TargetCount {
		ranges = ranges[:opts.TargetCount]
	}
	log.Infof("llm selection produced %d valid ranges", len(ranges))
	return ranges, true
}

// buildLLMPrompt renders the transcript and constraints into a single-turn
// instruction asking for a JSON array of {start,end,reason} objects. The
// wording is original; the JSON contract mirrors original_source's
// _pick_segments_llm (§9 design note: follow the original where spec.md is
// silent on exact prompt wording).
func buildLLMPrompt(transcript entity.Transcript, opts vo.Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are editing a %s-language video into %d short vertical clips.\n", opts.Language, opts.TargetCount)
	fmt.Fprintf(&b, "Each clip must be a contiguous run of the numbered transcript lines below, lasting between %.0f and %.0f seconds.\n", opts.MinSec, opts.MaxSec)
	b.WriteString("Prefer moments with a strong hook, a surprising turn, or a clear payoff. Do not cut a sentence in half.\n")
	b.WriteString("Return ONLY a JSON array, no markdown fences, no commentary, shaped like:\n")
	b.WriteString(`[{"start": 12.3, "end": 41.0, "reason": "short reason"}]`)
	b.WriteString("\n\nTranscript:\n")
	for i, seg := range transcript.Segments {
		fmt.Fprintf(&b, "[%d] %.1f-%.1f: %s\n", i, seg.Start, seg.End, seg.Text)
	}
	return b.String()
}

type llmCandidate struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Reason string  `json:"reason"`
}

var jsonArrayRE = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// parseLLMResponse extracts a JSON array from raw LLM text, tolerating
// markdown code fences and trailing commentary — the same robustness the
// original implementation's _extract_json_from_response applies.
func parseLLMResponse(raw string) ([]llmCandidate, error) {
	content := strings.TrimSpace(raw)
	if strings.Contains(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			candidate := parts[1]
			candidate = strings.TrimPrefix(candidate, "json")
			content = strings.TrimSpace(candidate)
		}
	}
	if m := jsonArrayRE.FindString(content); m != "" {
		content = m
	}

	var candidates []llmCandidate
	if err := json.Unmarshal([]byte(content), &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// postValidateLLM enforces spec.md §4.3's post-validation rules: duration
// filter, boundary snap, overlap resolution (earliest start wins), and
// chronological ordering. Truncation/padding to target_count happens in
// the caller.
func postValidateLLM(candidates []llmCandidate, transcript entity.Transcript, opts vo.Options) []entity.SelectionRange {
	boundaries := segmentBoundaries(transcript)

	valid := make([]entity.SelectionRange, 0, len(candidates))
	for _, c := range candidates {
		if c.End <= c.Start {
			continue
		}
		start := snapToBoundary(c.Start, boundaries)
		end := snapToBoundary(c.End, boundaries)
		if end <= start {
			continue
		}
		dur := end - start
		if dur < opts.MinSec || dur > opts.MaxSec {
			continue
		}
		valid = append(valid, entity.SelectionRange{
			Start: start, End: end, Method: vo.MethodLLM, Reason: c.Reason,
		})
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		return valid[i].Duration() < valid[j].Duration()
	})

	kept := make([]entity.SelectionRange, 0, len(valid))
	for _, r := range valid {
		overlaps := false
		for _, k := range kept {
			if r.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	return kept
}

// segmentBoundaries returns the sorted, deduplicated set of every segment
// start/end time, used to snap LLM-proposed cut points onto real
// transcript boundaries.
func segmentBoundaries(transcript entity.Transcript) []float64 {
	out := make([]float64, 0, len(transcript.Segments)*2)
	for _, seg := range transcript.Segments {
		out = append(out, seg.Start, seg.End)
	}
	sort.Float64s(out)
	return out
}

// snapToBoundary returns the boundary closest to t. If no boundaries
// exist, t is returned unchanged.
func snapToBoundary(t float64, boundaries []float64) float64 {
	if len(boundaries) == 0 {
		return t
	}
	best := boundaries[0]
	bestDist := abs(t - best)
	for _, b := range boundaries[1:] {
		if d := abs(t - b); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// excludeRanges converts already-selected LLM ranges into a list the
// rule-based pass must not overlap.
func excludeRanges(ranges []entity.SelectionRange) []entity.SelectionRange {
	out := make([]entity.SelectionRange, len(ranges))
	copy(out, ranges)
	return out
}

// mergeChronological combines LLM ranges with rule-based padding ranges and
// sorts chronologically. The caller caps the padding request to
// target-len(llmRanges), so the combined length never exceeds target and
// an LLM-derived range is never evicted by padding; the truncation below
// only guards a caller that didn't.
func mergeChronological(llmRanges, padding []entity.SelectionRange, target int) []entity.SelectionRange {
	all := append(append([]entity.SelectionRange{}, llmRanges...), padding...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	if len(all) > target {
		all = all[:target]
	}
	return all
}

// ---------------------------------------------------------------------
// Strategy B — rule-based
// ---------------------------------------------------------------------

// ruleBased scores every transcript segment, then greedily grows ranges
// forward from the highest-scoring unassigned segment, per spec.md §4.3.
// exclude holds ranges (e.g. from a partial LLM pass) that candidates must
// not overlap.
func (s *Selector) ruleBased(transcript entity.Transcript, opts vo.Options, exclude []entity.SelectionRange) []entity.SelectionRange {
	segs := transcript.Segments
	n := len(segs)
	if n == 0 {
		return nil
	}

	sourceEnd := segs[n-1].End
	scores := make([]float64, n)
	for i, seg := range segs {
		scores[i] = scoreSegment(seg, sourceEnd)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})

	tried := make([]bool, n)
	selected := make([]entity.SelectionRange, 0, opts.TargetCount)
	selected = append(selected, exclude...)
	newlySelected := make([]entity.SelectionRange, 0, opts.TargetCount)

	for _, startIdx := range order {
		if len(newlySelected) >= opts.TargetCount {
			break
		}
		if tried[startIdx] {
			continue
		}
		tried[startIdx] = true

		rng, consumed, ok := growRange(segs, scores, startIdx, opts)
		if !ok {
			continue
		}
		overlaps := false
		for _, k := range selected {
			if rng.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		for _, idx := range consumed {
			tried[idx] = true
		}
		selected = append(selected, rng)
		newlySelected = append(newlySelected, rng)
	}

	sort.SliceStable(newlySelected, func(i, j int) bool {
		if newlySelected[i].Start != newlySelected[j].Start {
			return newlySelected[i].Start < newlySelected[j].Start
		}
		return newlySelected[i].Duration() < newlySelected[j].Duration()
	})
	return newlySelected
}

// scoreSegment composites normalized text length, a sentence-terminal
// punctuation bonus, and a mild cold-open penalty for the source's first
// 10%, per spec.md §4.3.
func scoreSegment(seg entity.TranscriptSegment, sourceDurationSec float64) float64 {
	text := strings.TrimSpace(seg.Text)
	lengthNorm := float64(len([]rune(text))) / 80.0
	if lengthNorm > 1.0 {
		lengthNorm = 1.0
	}

	score := lengthNorm
	if hasSentenceTerminalPunctuation(text) {
		score += 0.2
	}
	if sourceDurationSec > 0 && seg.Start < 0.10*sourceDurationSec {
		score -= 0.25
	} else {
		score += 0.05
	}
	return score
}

func hasSentenceTerminalPunctuation(text string) bool {
	if text == "" {
		return false
	}
	r := []rune(text)
	last := r[len(r)-1]
	switch last {
	case '.', '!', '?', '。', '！', '？':
		return true
	default:
		return false
	}
}

// growRange extends forward from segs[startIdx], accumulating duration
// until it reaches min_sec, then keeps extending while the running total
// stays within max_sec and the next segment's score is at or above the
// running average (the "improves score" clause). It returns the consumed
// segment indices so the caller can mark them tried even on success.
func growRange(segs []entity.TranscriptSegment, scores []float64, startIdx int, opts vo.Options) (entity.SelectionRange, []int, bool) {
	start := segs[startIdx].Start
	end := segs[startIdx].End
	consumed := []int{startIdx}
	scoreSum := scores[startIdx]

	i := startIdx + 1
	for end-start < opts.MinSec && i < len(segs) {
		end = segs[i].End
		consumed = append(consumed, i)
		scoreSum += scores[i]
		i++
	}
	if end-start < opts.MinSec {
		return entity.SelectionRange{}, nil, false
	}

	for i < len(segs) {
		avg := scoreSum / float64(len(consumed))
		candidateEnd := segs[i].End
		if candidateEnd-start > opts.MaxSec {
			break
		}
		if scores[i] < avg {
			break
		}
		end = candidateEnd
		consumed = append(consumed, i)
		scoreSum += scores[i]
		i++
	}

	if end-start > opts.MaxSec {
		end = start + opts.MaxSec
	}
	return entity.SelectionRange{Start: start, End: end, Method: vo.MethodRule}, consumed, true
}

// ---------------------------------------------------------------------
// Strategy C — hard fallback
// ---------------------------------------------------------------------

// hardFallback produces exactly 3 evenly spaced ranges at 10/45/80% of the
// source's duration, per spec.md §4.3. Used only when Strategy B yields
// fewer than MinGuaranteed ranges (an empty transcript, for example).
func hardFallback(opts vo.Options, sourceDurationSec float64) []entity.SelectionRange {
	dur := clamp((opts.MinSec+opts.MaxSec)/2, opts.MinSec, opts.MaxSec)
	positions := []float64{0.10, 0.45, 0.80}

	ranges := make([]entity.SelectionRange, 0, len(positions))
	for _, pos := range positions {
		start := pos * sourceDurationSec
		end := start + dur
		if end > sourceDurationSec {
			end = sourceDurationSec
			start = end - dur
			if start < 0 {
				start = 0
			}
		}
		ranges = append(ranges, entity.SelectionRange{Start: start, End: end, Method: vo.MethodFallback})
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	return ranges
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
