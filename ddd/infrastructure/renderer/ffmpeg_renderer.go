// Package renderer implements C4: encoding one selected transcript range
// into a 9:16 letterboxed, captioned MP4.
package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/port"
	"clipforge/ddd/domain/vo"
	"clipforge/pkg/errno"
	"clipforge/pkg/logger"
)

// minTimeout is the floor of the per-clip wall-clock cap, spec.md §4.4.
const minTimeout = 90 * time.Second

// FFmpegRenderer produces the MP4 for a single SelectionRange.
type FFmpegRenderer struct {
	ffmpegPath string
	runner     port.CommandRunner
}

func New(ffmpegPath string, runner port.CommandRunner) *FFmpegRenderer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegRenderer{ffmpegPath: ffmpegPath, runner: runner}
}

// Render encodes srcPath's [rng.Start, rng.End) into a vertical MP4 under
// outDir and returns its path, burning in segments as subtitles unless rng.Method is the hard
// fallback strategy (spec.md §4.4). The per-clip wall-clock cap is
// max(90s, 3*range_duration).
func (r *FFmpegRenderer) Render(ctx context.Context, srcPath string, rng entity.SelectionRange, segments []entity.TranscriptSegment, style vo.SubtitleStyle, outDir string) (string, error) {
	timeout := minTimeout
	if d := time.Duration(3*rng.Duration()) * time.Second; d > timeout {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("renderer: create out dir: %w", err)
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("clip-%d.mp4", int64(rng.Start*1000)))

	var srtPath string
	if rng.Method != vo.MethodFallback && len(segments) > 0 {
		var err error
		srtPath, err = writeSRT(filepath.Join(outDir, fmt.Sprintf("clip-%d.srt", int64(rng.Start*1000))), rng, segments)
		if err != nil {
			return "", fmt.Errorf("renderer: write srt: %w", err)
		}
	}

	args := buildArgs(srcPath, outPath, rng, srtPath, style)
	logger.Infof("ffmpeg render command=%s %s", r.ffmpegPath, strings.Join(args, " "))

	result, runErr := r.runner.Run(ctx, r.ffmpegPath, args...)
	if runErr != nil {
		if ctx.Err() != nil {
			return "", errno.New(errno.KindEncoderFailed, "render timed out after "+timeout.String())
		}
		if looksCorrupt(result.Stderr) {
			return "", errno.New(errno.KindInputCorrupt, "input cannot be decoded: "+firstLine(result.Stderr))
		}
		return "", errno.New(errno.KindEncoderFailed, "ffmpeg exited non-zero: "+firstLine(result.Stderr))
	}

	if info, statErr := os.Stat(outPath); statErr != nil || info.Size() == 0 {
		return "", errno.New(errno.KindEncoderFailed, "ffmpeg produced no output")
	}
	return outPath, nil
}

// buildArgs constructs the exact codec/bitrate contract of spec.md §4.4:
// MP4+faststart, H.264 High 1080x1920 30fps yuv420p letterboxed, AAC-LC
// 128kbps 48kHz stereo, optional burned-in subtitles. -progress pipe:2
// mirrors the teacher's ffmpeg invocation shape even though this
// CommandRunner-mediated call reports completion rather than live frames.
func buildArgs(srcPath, outPath string, rng entity.SelectionRange, srtPath string, style vo.SubtitleStyle) []string {
	filters := []string{
		"scale=1080:-2:force_original_aspect_ratio=decrease",
		"pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black",
		"fps=30",
		"format=yuv420p",
	}
	if srtPath != "" {
		filters = append(filters, subtitleFilter(srtPath, style))
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-ss", strconv.FormatFloat(rng.Start, 'f', 3, 64),
		"-i", srcPath,
		"-t", strconv.FormatFloat(rng.Duration(), 'f', 3, 64),
		"-progress", "pipe:2",
		"-nostats",
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-profile:v", "high",
		"-pix_fmt", "yuv420p",
		"-r", "30",
		"-ac", "2",
		"-ar", "48000",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y",
		outPath,
	}
	return args
}

// subtitleFilter builds the ffmpeg subtitles filter with a force_style
// clause derived from the closed SubtitleStyle bag, positioned in the
// lower letterbox band (alignment 2, bottom-centered, lifted by MarginV).
func subtitleFilter(srtPath string, style vo.SubtitleStyle) string {
	escaped := strings.ReplaceAll(srtPath, "'", "\\'")
	escaped = strings.ReplaceAll(escaped, ":", "\\:")
	forceStyle := fmt.Sprintf(
		"FontName=%s,FontSize=%d,PrimaryColour=%s,OutlineColour=%s,Alignment=2,MarginV=90",
		assEscape(style.FontFamily), style.FontSize, assColor(style.FillColor), assColor(style.OutlineColor),
	)
	return fmt.Sprintf("subtitles='%s':force_style='%s'", escaped, forceStyle)
}

// assEscape strips/escapes everything that could let a caller-supplied
// FontFamily break out of force_style's single-quoted filter argument or
// its own comma-delimited key=value list: commas (field separator),
// colons (ffmpeg filter-graph option separator), and single quotes (the
// argument's own delimiter).
func assEscape(s string) string {
	s = strings.ReplaceAll(s, ",", " ")
	s = strings.ReplaceAll(s, ":", " ")
	s = strings.ReplaceAll(s, "'", "")
	return s
}

var hexColorRE = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// assColor converts a #RRGGBB hex color into ASS's &HBBGGRR& order. Any
// input that isn't exactly six hex digits (after stripping a leading #)
// falls back to opaque white rather than being interpolated verbatim --
// force_style is a single-quoted ffmpeg filter argument, so an unvalidated
// color string is an injection point.
func assColor(hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	if !hexColorRE.MatchString(hex) {
		return "&H00FFFFFF&"
	}
	r, g, b := hex[0:2], hex[2:4], hex[4:6]
	return "&H00" + b + g + r + "&"
}

// writeSRT emits segments clipped to rng, re-timestamped relative to the
// clip's own start, one entry per transcript segment.
func writeSRT(path string, rng entity.SelectionRange, segments []entity.TranscriptSegment) (string, error) {
	var b strings.Builder
	count := 0
	for _, seg := range segments {
		start := seg.Start - rng.Start
		end := seg.End - rng.Start
		if start < 0 {
			start = 0
		}
		if end > rng.Duration() {
			end = rng.Duration()
		}
		if end <= start {
			continue
		}
		count++
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", count, srtTimestamp(start), srtTimestamp(end), wrapSubtitle(seg.Text))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func srtTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := time.Duration(sec * float64(time.Second))
	h := total / time.Hour
	total -= h * time.Hour
	m := total / time.Minute
	total -= m * time.Minute
	s := total / time.Second
	total -= s * time.Second
	ms := total / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// wrapSubtitle line-wraps text to <=20 runes per line, per spec.md §4.4,
// breaking at the last space that fits and hard-breaking a longer word.
// Every rune counts as one column, full-width characters included.
func wrapSubtitle(text string) string {
	const maxWidth = 20
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxWidth {
		return string(runes)
	}
	cut := maxWidth
	for off := 0; off < maxWidth; off++ {
		if runes[maxWidth-off] == ' ' {
			cut = maxWidth - off
			break
		}
	}
	first := strings.TrimSpace(string(runes[:cut]))
	rest := strings.TrimSpace(string(runes[cut:]))
	return first + "\n" + wrapSubtitle(rest)
}

var corruptMarkers = []string{"invalid data found", "moov atom not found", "could not find codec", "error while decoding"}

func looksCorrupt(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range corruptMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
