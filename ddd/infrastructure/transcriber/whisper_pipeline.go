// Package transcriber implements C2: producing a timed-segment transcript
// from a local video's audio track, via an ffmpeg preprocessing step and a
// whisper.cpp-style speech-to-text subprocess.
package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/port"
	"clipforge/ddd/domain/vo"
	"clipforge/pkg/errno"
)

// WhisperPipeline runs ffmpeg-to-WAV preprocessing then a whisper.cpp-style
// binary invoked with JSON segment output.
type WhisperPipeline struct {
	ffmpegPath  string
	whisperPath string
	modelDir    string
	runner      port.CommandRunner
	timeout     time.Duration
}

func New(ffmpegPath, whisperPath, modelDir string, runner port.CommandRunner, timeout time.Duration) *WhisperPipeline {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if whisperPath == "" {
		whisperPath = "whisper.cpp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &WhisperPipeline{ffmpegPath: ffmpegPath, whisperPath: whisperPath, modelDir: modelDir, runner: runner, timeout: timeout}
}

// Transcribe produces a Transcript for videoPath, per spec.md §4.2. A
// zero-length audio track yields an empty-segment Transcript without error;
// timeouts and subprocess failures return a TranscribeFailed errno.
func (p *WhisperPipeline) Transcribe(ctx context.Context, videoPath string, opts vo.Options, workDir string) (entity.Transcript, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	modelPath, err := p.resolveModelPath(opts.WhisperModel)
	if err != nil {
		return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, err.Error())
	}

	wavPath := filepath.Join(workDir, "audio-16k-mono.wav")
	if _, err := p.runner.Run(ctx, p.ffmpegPath, buildFFmpegArgs(videoPath, wavPath)...); err != nil {
		return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, "ffmpeg preprocessing failed: "+err.Error())
	}
	if info, statErr := os.Stat(wavPath); statErr != nil || info.Size() == 0 {
		return entity.Transcript{Segments: nil}, nil
	}

	jsonBase := filepath.Join(workDir, "transcript")
	args := buildWhisperArgs(modelPath, wavPath, jsonBase, opts.Language)
	if _, err := p.runner.Run(ctx, p.whisperPath, args...); err != nil {
		if ctx.Err() != nil {
			return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, "transcription timed out")
		}
		return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, "whisper.cpp failed: "+err.Error())
	}

	raw, err := os.ReadFile(jsonBase + ".json")
	if err != nil {
		return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, "transcript json missing: "+err.Error())
	}

	transcript, err := parseWhisperJSON(raw)
	if err != nil {
		return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, "transcript json malformed: "+err.Error())
	}
	if err := transcript.Validate(); err != nil {
		return entity.Transcript{}, errno.New(errno.KindTranscribeFailed, "transcript invariant violated: "+err.Error())
	}
	return transcript, nil
}

func (p *WhisperPipeline) resolveModelPath(model vo.WhisperModel) (string, error) {
	if p.modelDir == "" {
		return "", fmt.Errorf("whisper model_dir is not configured")
	}
	name := string(model)
	if name == "" {
		name = string(vo.WhisperSmall)
	}
	for _, ext := range []string{".bin", ".gguf"} {
		candidate := filepath.Join(p.modelDir, "ggml-"+name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	entries, err := os.ReadDir(p.modelDir)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", p.modelDir)
	}
	var fallback string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".bin" || ext == ".gguf" {
			fallback = filepath.Join(p.modelDir, e.Name())
			break
		}
	}
	if fallback == "" {
		return "", fmt.Errorf("no whisper model file found for %q in %s", name, p.modelDir)
	}
	return fallback, nil
}

func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func buildWhisperArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}

func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// whisperJSON mirrors whisper.cpp's -oj output shape.
type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseWhisperJSON converts whisper.cpp's millisecond-offset segments into
// entity.TranscriptSegment, sorted and de-duplicated defensively so a
// slightly out-of-order whisper.cpp build can't violate Transcript's
// monotonic invariant.
func parseWhisperJSON(raw []byte) (entity.Transcript, error) {
	var doc whisperJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return entity.Transcript{}, err
	}

	segments := make([]entity.TranscriptSegment, 0, len(doc.Transcription))
	for _, seg := range doc.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := float64(seg.Offsets.From) / 1000.0
		end := float64(seg.Offsets.To) / 1000.0
		if end <= start {
			continue
		}
		segments = append(segments, entity.TranscriptSegment{Start: start, End: end, Text: text})
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })

	fixed := make([]entity.TranscriptSegment, 0, len(segments))
	for _, seg := range segments {
		if len(fixed) > 0 && seg.Start < fixed[len(fixed)-1].End {
			seg.Start = fixed[len(fixed)-1].End
		}
		if seg.Start >= seg.End {
			continue
		}
		fixed = append(fixed, seg)
	}

	return entity.Transcript{Segments: fixed, LanguageDetected: doc.Result.Language}, nil
}
