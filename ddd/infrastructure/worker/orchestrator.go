// Package worker implements C7: the bounded-concurrency dispatcher (Pool)
// and the single-job fetch->transcribe->select->render->upload state
// machine (Orchestrator), grounded on the teacher's
// ddd/infrastructure/worker/transcode_worker.go workerLoop/semaphore shape
// and on other_examples/Bobarinn-video-genie__worker.go's withSemaphore
// helper.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"clipforge/ddd/domain/entity"
	"clipforge/ddd/domain/gateway"
	"clipforge/ddd/domain/repo"
	"clipforge/ddd/domain/service"
	"clipforge/ddd/domain/vo"
	"clipforge/ddd/infrastructure/fetcher"
	"clipforge/ddd/infrastructure/renderer"
	"clipforge/ddd/infrastructure/transcriber"
	"clipforge/ddd/infrastructure/uploader"
	"clipforge/pkg/errno"
	"clipforge/pkg/logger"
)

// progress breakpoints, spec.md §4.6.
const (
	progressFetching     = 0.05
	progressTranscribing = 0.20
	progressSelecting    = 0.45
	progressRenderStart  = 0.55
	progressRenderEnd    = 0.90
	progressUploadStart  = 0.90
	progressUploadEnd    = 0.99
)

// EventPublisher is the optional job-lifecycle event sink (ddd/infrastructure/events).
// A nil EventPublisher means events are simply not published; it is never
// required for correctness.
type EventPublisher interface {
	Publish(ctx context.Context, event gateway.JobEvent) error
}

// DurableMirror is the optional terminal-job audit sink
// (ddd/infrastructure/durablestore). Never consulted for reads; Registry.Get
// always answers from the in-memory record.
type DurableMirror interface {
	Mirror(ctx context.Context, snapshot entity.JobSnapshot) error
}

// Orchestrator runs one Job through C1-C5 and applies the §4.7 fallback
// policy. It is stateless between jobs; all per-job state lives in the
// entity.Job the Registry owns.
type Orchestrator struct {
	fetcher     *fetcher.Fetcher
	transcriber *transcriber.WhisperPipeline
	selector    *service.Selector
	renderer    *renderer.FFmpegRenderer
	uploader    *uploader.Uploader

	ffprobePath  string
	tmpDir       string
	jobTimeout   time.Duration
	defaultStyle vo.SubtitleStyle

	events  EventPublisher
	mirror  DurableMirror
}

// Dependencies bundles the Orchestrator's constructor arguments so New's
// signature stays readable as the pipeline grows optional collaborators.
type Dependencies struct {
	Fetcher      *fetcher.Fetcher
	Transcriber  *transcriber.WhisperPipeline
	Selector     *service.Selector
	Renderer     *renderer.FFmpegRenderer
	Uploader     *uploader.Uploader
	FFprobePath  string
	TmpDir       string
	JobTimeout   time.Duration
	DefaultStyle vo.SubtitleStyle
	Events       EventPublisher
	Mirror       DurableMirror
}

func NewOrchestrator(deps Dependencies) *Orchestrator {
	ffprobe := deps.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	tmpDir := deps.TmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	jobTimeout := deps.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	return &Orchestrator{
		fetcher:      deps.Fetcher,
		transcriber:  deps.Transcriber,
		selector:     deps.Selector,
		renderer:     deps.Renderer,
		uploader:     deps.Uploader,
		ffprobePath:  ffprobe,
		tmpDir:       tmpDir,
		jobTimeout:   jobTimeout,
		defaultStyle: deps.DefaultStyle,
		events:       deps.Events,
		mirror:       deps.Mirror,
	}
}

// Run executes job's full pipeline. job must already be in status=running
// (the Registry's Dequeue does this). The scratch directory is removed on
// every exit path.
func (o *Orchestrator) Run(parent context.Context, job *entity.Job, registry repo.JobRepository) {
	ctx, cancel := context.WithTimeout(parent, o.jobTimeout)
	defer cancel()

	jobID, traceID := job.JobID(), job.TraceID()
	req := job.Request()
	opts := req.Options
	log := logger.WithJob(traceID, jobID, "")

	scratchDir := filepath.Join(o.tmpDir, jobID)
	defer os.RemoveAll(scratchDir)

	// --- fetching ---
	o.publish(ctx, registry, jobID, vo.StageFetching, progressFetching, "fetching source video")
	localPath, _, err := o.fetcher.Fetch(ctx, req, scratchDir)
	if err != nil {
		o.fail(ctx, registry, job, vo.StageFetching, err)
		return
	}

	sourceDuration := o.probeDuration(localPath)

	// --- transcribing ---
	o.publish(ctx, registry, jobID, vo.StageTranscribing, progressTranscribing, "transcribing audio")
	transcript, err := o.transcriber.Transcribe(ctx, localPath, opts, scratchDir)
	if err != nil {
		if ctx.Err() != nil {
			o.fail(ctx, registry, job, vo.StageTranscribing, errno.New(errno.KindJobTimeout, "job_timeout exceeded during transcription"))
			return
		}
		log.Warnf("transcription failed, continuing with empty transcript: %v", err)
		transcript = entity.Transcript{}
	}

	// --- selecting ---
	o.publish(ctx, registry, jobID, vo.StageSelecting, progressSelecting, "selecting clip ranges")
	selection, err := o.selector.Select(ctx, transcript, opts, sourceDuration, traceID, jobID)
	if err != nil {
		o.fail(ctx, registry, job, vo.StageSelecting, errno.New(errno.KindInternalError, err.Error()))
		return
	}
	if len(selection.Ranges) < vo.MinGuaranteed {
		o.fail(ctx, registry, job, vo.StageSelecting, errno.New(errno.KindNoSegmentsProducible, fmt.Sprintf("selector produced only %d ranges, need %d", len(selection.Ranges), vo.MinGuaranteed)))
		return
	}

	// --- rendering, all clips, then uploading, all clips ---
	// Rendering and uploading are kept as two separate passes (rather than
	// interleaved per clip) so the published progress stays monotonic: the
	// §4.6 table gives rendering its own 0.55->0.90 band and uploading its
	// own 0.90->0.99 band across *all* clips, and ApplyProgress rejects any
	// decrease (job.go). Interleaving would make clip 1's upload jump to
	// ~0.90 and then clip 2's render report ~0.62, which is a decrease.
	total := len(selection.Ranges)
	outputs := make([]entity.ClipOutput, 0, total)
	skipped := 0

	type rendered struct {
		index int
		rng   entity.SelectionRange
		path  string
	}
	clips := make([]rendered, 0, total)

	for i, rng := range selection.Ranges {
		if ctx.Err() != nil {
			o.fail(ctx, registry, job, vo.StageRendering, errno.New(errno.KindJobTimeout, "job_timeout exceeded during rendering"))
			return
		}

		renderProgress := progressRenderStart + (float64(i)/float64(total))*(progressRenderEnd-progressRenderStart)
		o.publish(ctx, registry, jobID, vo.StageRendering, renderProgress, fmt.Sprintf("rendering clip %d/%d", i+1, total))

		style := opts.SubtitleStyle.Defaults(o.defaultStyle)
		segments := transcript.SegmentsIn(rng.Start, rng.End)
		clipPath, err := o.renderer.Render(ctx, localPath, rng, segments, style, scratchDir)
		if err != nil {
			log.Warnf("render failed for clip %d, skipping: %v", i+1, err)
			skipped++
			continue
		}
		clips = append(clips, rendered{index: i + 1, rng: rng, path: clipPath})
	}

	renderedTotal := len(clips)
	for j, rc := range clips {
		if ctx.Err() != nil {
			o.fail(ctx, registry, job, vo.StageUploading, errno.New(errno.KindJobTimeout, "job_timeout exceeded during upload"))
			return
		}

		uploadProgress := progressUploadStart
		if renderedTotal > 0 {
			uploadProgress += (float64(j) / float64(renderedTotal)) * (progressUploadEnd - progressUploadStart)
		}
		o.publish(ctx, registry, jobID, vo.StageUploading, uploadProgress, fmt.Sprintf("uploading clip %d/%d", rc.index, total))

		output, err := o.uploader.Upload(ctx, rc.path, rc.rng, req.TitleHint, rc.index)
		if err != nil {
			log.Warnf("upload failed for clip %d, skipping: %v", rc.index, err)
			skipped++
			continue
		}
		outputs = append(outputs, output)
	}

	if len(outputs) < vo.MinGuaranteed {
		o.fail(ctx, registry, job, vo.StageRendering, errno.New(errno.KindNoSegmentsProducible, fmt.Sprintf("only %d of %d clips survived render/upload, need %d", len(outputs), total, vo.MinGuaranteed)))
		return
	}

	message := fmt.Sprintf("produced %d clips", len(outputs))
	if skipped > 0 {
		message = fmt.Sprintf("produced %d clips, skipped %d due to render/upload failure", len(outputs), skipped)
	}
	o.complete(ctx, registry, job, outputs, message)
}

func (o *Orchestrator) publish(ctx context.Context, registry repo.JobRepository, jobID string, stage vo.Stage, progress float64, message string) {
	if err := registry.Mutate(context.Background(), jobID, func(j *entity.Job) error {
		return j.ApplyProgress(stage, progress, message)
	}); err != nil {
		logger.Warnf("job %s: failed to publish progress stage=%s: %v", jobID, stage, err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, registry repo.JobRepository, job *entity.Job, stage vo.Stage, cause error) {
	kind, message := classify(cause)
	jobErr := entity.NewJobError(kind, message, string(stage))
	jobID := job.JobID()
	logger.WithJob(job.TraceID(), jobID, string(stage)).Errorf("job failed: %s", message)

	if err := registry.Mutate(context.Background(), jobID, func(j *entity.Job) error {
		return j.Fail(jobErr)
	}); err != nil {
		logger.Warnf("job %s: failed to record terminal failure: %v", jobID, err)
	}
	o.notifyTerminal(context.Background(), registry, jobID, vo.JobStatusFailed)
}

func (o *Orchestrator) complete(ctx context.Context, registry repo.JobRepository, job *entity.Job, outputs []entity.ClipOutput, message string) {
	jobID := job.JobID()
	if err := registry.Mutate(context.Background(), jobID, func(j *entity.Job) error {
		return j.Complete(outputs, message)
	}); err != nil {
		logger.Warnf("job %s: failed to record completion: %v", jobID, err)
		return
	}
	logger.WithJob(job.TraceID(), jobID, string(vo.StageDone)).Infof("job done: %s", message)
	o.notifyTerminal(context.Background(), registry, jobID, vo.JobStatusDone)
}

// notifyTerminal publishes a best-effort lifecycle event and durable-store
// mirror once a Job reaches done/failed. Neither failure here changes the
// Job's own terminal state; both are downstream audit concerns.
func (o *Orchestrator) notifyTerminal(ctx context.Context, registry repo.JobRepository, jobID string, status vo.JobStatus) {
	snap, err := registry.Get(ctx, jobID)
	if err != nil {
		return
	}
	if o.events != nil {
		if err := o.events.Publish(ctx, gateway.JobEvent{JobID: jobID, TraceID: snap.TraceID, Status: string(status)}); err != nil {
			logger.Warnf("job %s: event publish failed: %v", jobID, err)
		}
	}
	if o.mirror != nil {
		if err := o.mirror.Mirror(ctx, snap); err != nil {
			logger.Warnf("job %s: durable mirror failed: %v", jobID, err)
		}
	}
}

// classify extracts an errno.Kind/message pair from a stage error, falling
// back to InternalError for anything unclassified (spec.md §7).
func classify(err error) (errno.Kind, string) {
	var e *errno.Errno
	if errors.As(err, &e) {
		return e.Kind, e.Message
	}
	return errno.KindInternalError, err.Error()
}

// probeDuration shells out to ffprobe for the source's total duration,
// needed only by Selector Strategy C. Grounded on the teacher's
// probeDurationSeconds ffprobe-invocation shape; a probe failure yields 0,
// which Strategy C treats as "positions clip at time zero" rather than as
// an error (duration is advisory, never required for Strategy A/B).
func (o *Orchestrator) probeDuration(localPath string) float64 {
	cmd := exec.Command(o.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		localPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || dur < 0 {
		return 0
	}
	return dur
}
