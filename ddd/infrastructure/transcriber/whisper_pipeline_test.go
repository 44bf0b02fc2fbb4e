package transcriber

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipforge/ddd/domain/port"
	"clipforge/ddd/domain/vo"
)

type fakeRunner struct {
	onRun func(name string, args ...string) (port.CommandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (port.CommandResult, error) {
	return f.onRun(name, args...)
}

func writeModelFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("fake-model"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
}

func TestTranscribe_ParsesWhisperJSON(t *testing.T) {
	modelDir := t.TempDir()
	writeModelFile(t, modelDir, "ggml-small.bin")
	workDir := t.TempDir()

	runner := &fakeRunner{onRun: func(name string, args ...string) (port.CommandResult, error) {
		if name == "ffmpeg" {
			if err := os.WriteFile(filepath.Join(workDir, "audio-16k-mono.wav"), []byte("fake-wav"), 0o644); err != nil {
				t.Fatalf("write fake wav: %v", err)
			}
			return port.CommandResult{}, nil
		}
		json := `{"result":{"language":"en"},"transcription":[
			{"offsets":{"from":0,"to":2000},"text":"hello there"},
			{"offsets":{"from":2000,"to":5000},"text":"world"}
		]}`
		if err := os.WriteFile(filepath.Join(workDir, "transcript.json"), []byte(json), 0o644); err != nil {
			t.Fatalf("write fake transcript: %v", err)
		}
		return port.CommandResult{}, nil
	}}

	p := New("ffmpeg", "whisper.cpp", modelDir, runner, time.Minute)
	transcript, err := p.Transcribe(context.Background(), filepath.Join(workDir, "source.mp4"), vo.Options{WhisperModel: vo.WhisperSmall, Language: "en"}, workDir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(transcript.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(transcript.Segments))
	}
	if transcript.LanguageDetected != "en" {
		t.Errorf("expected language en, got %s", transcript.LanguageDetected)
	}
	if err := transcript.Validate(); err != nil {
		t.Errorf("transcript violates invariants: %v", err)
	}
}

func TestTranscribe_ZeroLengthAudioYieldsEmptyTranscript(t *testing.T) {
	modelDir := t.TempDir()
	writeModelFile(t, modelDir, "ggml-small.bin")
	workDir := t.TempDir()

	runner := &fakeRunner{onRun: func(name string, args ...string) (port.CommandResult, error) {
		if name == "ffmpeg" {
			return port.CommandResult{}, os.WriteFile(filepath.Join(workDir, "audio-16k-mono.wav"), nil, 0o644)
		}
		t.Fatal("whisper.cpp should not run when the preprocessed audio is empty")
		return port.CommandResult{}, nil
	}}

	p := New("ffmpeg", "whisper.cpp", modelDir, runner, time.Minute)
	transcript, err := p.Transcribe(context.Background(), filepath.Join(workDir, "source.mp4"), vo.Options{WhisperModel: vo.WhisperSmall}, workDir)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(transcript.Segments) != 0 {
		t.Fatalf("expected empty transcript, got %d segments", len(transcript.Segments))
	}
}

func TestTranscribe_FfmpegFailureReturnsTranscribeFailed(t *testing.T) {
	modelDir := t.TempDir()
	writeModelFile(t, modelDir, "ggml-small.bin")
	workDir := t.TempDir()

	runner := &fakeRunner{onRun: func(name string, args ...string) (port.CommandResult, error) {
		return port.CommandResult{}, &fakeExecError{}
	}}

	p := New("ffmpeg", "whisper.cpp", modelDir, runner, time.Minute)
	_, err := p.Transcribe(context.Background(), filepath.Join(workDir, "source.mp4"), vo.Options{WhisperModel: vo.WhisperSmall}, workDir)
	if err == nil {
		t.Fatal("expected an error when ffmpeg preprocessing fails")
	}
}

type fakeExecError struct{}

func (f *fakeExecError) Error() string { return "exit status 1" }

func TestParseWhisperJSON_FixesMinorOverlap(t *testing.T) {
	raw := []byte(`{"result":{"language":"ja"},"transcription":[
		{"offsets":{"from":0,"to":3000},"text":"a"},
		{"offsets":{"from":2900,"to":5000},"text":"b"}
	]}`)
	transcript, err := parseWhisperJSON(raw)
	if err != nil {
		t.Fatalf("parseWhisperJSON: %v", err)
	}
	if err := transcript.Validate(); err != nil {
		t.Fatalf("expected overlap to be repaired, got: %v", err)
	}
}
