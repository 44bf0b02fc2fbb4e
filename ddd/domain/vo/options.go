package vo

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// MinGuaranteed is the minimum number of successful clips required for a
// Job to reach done; fixed, not configurable.
const MinGuaranteed = 3

// SourceType is the closed set of ways a JobRequest may reference its
// source video.
type SourceType string

const (
	SourceTypeDrive SourceType = "drive"
	SourceTypeURL   SourceType = "url"
)

func (s SourceType) IsValid() bool {
	return s == SourceTypeDrive || s == SourceTypeURL
}

// SelectionMethod tags which strategy produced a Selection range.
type SelectionMethod string

const (
	MethodLLM      SelectionMethod = "llm"
	MethodRule     SelectionMethod = "rule"
	MethodFallback SelectionMethod = "fallback"
)

// WhisperModel is the closed set of supported speech-to-text model sizes.
type WhisperModel string

const (
	WhisperTiny   WhisperModel = "tiny"
	WhisperBase   WhisperModel = "base"
	WhisperSmall  WhisperModel = "small"
	WhisperMedium WhisperModel = "medium"
)

func (m WhisperModel) IsValid() bool {
	switch m {
	case WhisperTiny, WhisperBase, WhisperSmall, WhisperMedium:
		return true
	default:
		return false
	}
}

// SubtitleStyle is the per-request-overridable subset of subtitle
// rendering style; arbitrary ASS override strings are rejected, only these
// four fields are honored (see the subtitle style configurability decision
// in DESIGN.md).
type SubtitleStyle struct {
	FontFamily   string `json:"font_family,omitempty"`
	FontSize     int    `json:"font_size,omitempty"`
	OutlineColor string `json:"outline_color,omitempty"`
	FillColor    string `json:"fill_color,omitempty"`
}

// Defaults overlays zero-valued fields of s with d, implementing the
// "system-wide default + per-request override" policy.
func (s SubtitleStyle) Defaults(d SubtitleStyle) SubtitleStyle {
	if s.FontFamily == "" {
		s.FontFamily = d.FontFamily
	}
	if s.FontSize <= 0 {
		s.FontSize = d.FontSize
	}
	if s.OutlineColor == "" {
		s.OutlineColor = d.OutlineColor
	}
	if s.FillColor == "" {
		s.FillColor = d.FillColor
	}
	return s
}

// Options is the closed, versioned bag of Selector/Renderer/Transcriber
// knobs a JobRequest may carry. Unknown JSON keys are silently ignored by
// gin's default decoder rather than rejected; spec.md §3 permits either
// policy, and ignoring keeps an older caller's superfluous fields from
// turning into a hard 400.
type Options struct {
	TargetCount    int           `json:"target_count,omitempty"`
	MinSec         float64       `json:"min_sec,omitempty"`
	MaxSec         float64       `json:"max_sec,omitempty"`
	Language       string        `json:"language,omitempty"`
	WhisperModel   WhisperModel  `json:"whisper_model,omitempty"`
	ForceRuleBased bool          `json:"force_rule_based,omitempty"`
	SubtitleStyle  SubtitleStyle `json:"subtitle_style,omitempty"`
}

// Defaults is the baseline used to fill an Options value submitted with
// some or all fields omitted.
type Defaults struct {
	TargetCount   int
	MinSec        float64
	MaxSec        float64
	Language      string
	WhisperModel  WhisperModel
	SubtitleStyle SubtitleStyle
}

// WithDefaults returns a copy of o with omitted fields filled from d and
// target_count clamped to [3, 8].
func (o Options) WithDefaults(d Defaults) Options {
	out := o
	if out.TargetCount <= 0 {
		out.TargetCount = d.TargetCount
	}
	if out.TargetCount < 3 {
		out.TargetCount = 3
	}
	if out.TargetCount > 8 {
		out.TargetCount = 8
	}
	if out.MinSec <= 0 {
		out.MinSec = d.MinSec
	}
	if out.MaxSec <= 0 {
		out.MaxSec = d.MaxSec
	}
	if out.Language == "" {
		out.Language = d.Language
	}
	if out.WhisperModel == "" {
		out.WhisperModel = d.WhisperModel
	}
	out.SubtitleStyle = out.SubtitleStyle.Defaults(d.SubtitleStyle)
	return out
}

// Validate checks invariants that WithDefaults cannot repair: min_sec <=
// max_sec and a recognized whisper_model/language.
func (o Options) Validate() error {
	if o.MinSec <= 0 || o.MaxSec <= 0 {
		return fmt.Errorf("min_sec and max_sec must be positive")
	}
	if o.MinSec > o.MaxSec {
		return fmt.Errorf("min_sec (%v) must be <= max_sec (%v)", o.MinSec, o.MaxSec)
	}
	if o.WhisperModel != "" && !o.WhisperModel.IsValid() {
		return fmt.Errorf("invalid whisper_model: %s", o.WhisperModel)
	}
	if o.Language != "" && !strings.EqualFold(o.Language, "auto") {
		if _, err := language.Parse(o.Language); err != nil {
			return fmt.Errorf("invalid language tag %q: %w", o.Language, err)
		}
	}
	return nil
}
