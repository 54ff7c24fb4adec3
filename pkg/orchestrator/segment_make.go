package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aetherfm/station/pkg/audio"
	"github.com/aetherfm/station/pkg/blob"
	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/retrieval"
	"github.com/aetherfm/station/pkg/scriptgen"
	"github.com/aetherfm/station/pkg/services"
	"github.com/aetherfm/station/pkg/tts"
)

// Retriever is the retrieval call surface. Satisfied by *retrieval.Service.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// ScriptGenerator is the generation call surface. Satisfied by
// *scriptgen.Generator.
type ScriptGenerator interface {
	Generate(ctx context.Context, sc scriptgen.Context) (*scriptgen.Script, error)
	GenerateConversation(ctx context.Context, req scriptgen.ConversationRequest) (*scriptgen.Conversation, error)
}

// Synthesizer is the TTS call surface. Satisfied by *tts.Client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*tts.Result, error)
}

// BlobStore is the object storage surface. Satisfied by *blob.Store.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, keys ...string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// SegmentMakeHandler drives a segment from queued through retrieval,
// generation, and rendering, then hands off to the mastering stage.
type SegmentMakeHandler struct {
	segments  *services.SegmentService
	assets    *services.AssetService
	tone      *services.ToneService
	retriever Retriever
	generator ScriptGenerator
	tts       Synthesizer
	blobs     BlobStore
	jobs      *jobstore.Store
	gen       *config.GenerationConfig
	ttsCfg    *config.TTSConfig
}

// NewSegmentMakeHandler creates the segment_make handler.
func NewSegmentMakeHandler(segments *services.SegmentService, assets *services.AssetService,
	tone *services.ToneService, retriever Retriever, generator ScriptGenerator,
	synth Synthesizer, blobs BlobStore, jobs *jobstore.Store,
	gen *config.GenerationConfig, ttsCfg *config.TTSConfig) *SegmentMakeHandler {

	return &SegmentMakeHandler{
		segments:  segments,
		assets:    assets,
		tone:      tone,
		retriever: retriever,
		generator: generator,
		tts:       synth,
		blobs:     blobs,
		jobs:      jobs,
		gen:       gen,
		ttsCfg:    ttsCfg,
	}
}

// Handle runs one segment_make job. A redelivered job resumes from the
// segment's current state; completed stages are detected by their persisted
// products (script_md, asset_id) and not repeated.
func (h *SegmentMakeHandler) Handle(ctx context.Context, job *models.Job) error {
	var payload models.SegmentMakePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid segment_make payload: %w", err)
	}

	seg, err := h.segments.GetSegment(ctx, payload.SegmentID)
	if err != nil {
		return fmt.Errorf("failed to load segment %s: %w", payload.SegmentID, err)
	}
	log := slog.With("segment_id", seg.ID, "slot_type", seg.SlotType, "state", seg.State)

	switch seg.State {
	case models.SegmentStateQueued, models.SegmentStateRetrieving,
		models.SegmentStateGenerating, models.SegmentStateRendering,
		models.SegmentStateNormalizing:
	default:
		return faults.Integrityf("segment %s is %s, not producible", seg.ID, seg.State)
	}

	if err := h.produce(ctx, seg, log); err != nil {
		failCtx := context.WithoutCancel(ctx)
		if recErr := h.segments.RecordFailure(failCtx, seg.ID, err); recErr != nil {
			log.Error("Failed to record segment failure", "error", recErr)
		}
		return err
	}
	return nil
}

// produce walks the remaining pipeline stages for the segment.
func (h *SegmentMakeHandler) produce(ctx context.Context, seg *models.Segment, log *slog.Logger) error {
	referenceTime := h.referenceTime(seg)

	if seg.State == models.SegmentStateQueued {
		var err error
		if seg, err = h.segments.Transition(ctx, seg.ID, models.SegmentStateRetrieving); err != nil {
			return err
		}
	}

	var chunks []models.RAGChunk
	if seg.State == models.SegmentStateRetrieving {
		var err error
		chunks, err = h.retrieve(ctx, seg, referenceTime, log)
		if err != nil {
			return err
		}
		if seg, err = h.segments.Transition(ctx, seg.ID, models.SegmentStateGenerating); err != nil {
			return err
		}
	}

	if seg.State == models.SegmentStateGenerating {
		if seg.ScriptMD == nil {
			if chunks == nil {
				// Resumed attempt: the retrieval result was not persisted.
				var err error
				if chunks, err = h.retrieve(ctx, seg, referenceTime, log); err != nil {
					return err
				}
			}
			if err := h.generate(ctx, seg, chunks, referenceTime, log); err != nil {
				return err
			}
		}
		var err error
		if seg, err = h.segments.Transition(ctx, seg.ID, models.SegmentStateRendering); err != nil {
			return err
		}
		// Transition reloads; pick up the persisted script.
		if seg.ScriptMD == nil {
			return faults.Integrityf("segment %s reached rendering without a script", seg.ID)
		}
	}

	if seg.State == models.SegmentStateRendering {
		if seg.AssetID == nil {
			if err := h.render(ctx, seg, log); err != nil {
				return err
			}
		}
		var err error
		if seg, err = h.segments.Transition(ctx, seg.ID, models.SegmentStateNormalizing); err != nil {
			return err
		}
	}

	if seg.AssetID == nil {
		return faults.Integrityf("segment %s reached normalizing without an asset", seg.ID)
	}

	payload, err := json.Marshal(models.AudioFinalizePayload{
		SegmentID:   seg.ID,
		AssetID:     *seg.AssetID,
		ContentType: "speech",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal finalize payload: %w", err)
	}
	if _, err := h.jobs.Enqueue(ctx, models.JobTypeAudioFinalize, payload, jobstore.EnqueueOptions{
		Priority: seg.Priority,
	}); err != nil {
		return fmt.Errorf("failed to enqueue finalize job: %w", err)
	}

	log.Info("Segment handed off to mastering", "asset_id", *seg.AssetID)
	return nil
}

// referenceTime is the in-universe broadcast time: the scheduled start (or
// now) shifted by the configured year offset.
func (h *SegmentMakeHandler) referenceTime(seg *models.Segment) time.Time {
	base := time.Now().UTC()
	if seg.ScheduledStartTS != nil {
		base = *seg.ScheduledStartTS
	}
	return base.AddDate(h.gen.FutureYearOffset, 0, 0)
}

// retrieve runs the time-aware query and enforces the grounding requirement.
func (h *SegmentMakeHandler) retrieve(ctx context.Context, seg *models.Segment, referenceTime time.Time, log *slog.Logger) ([]models.RAGChunk, error) {
	query := retrieval.SynthesizeQuery(h.gen, seg.SlotType, referenceTime)
	result, err := h.retriever.Retrieve(ctx, retrieval.Query{
		Text:          query,
		RecencyBoost:  true,
		ReferenceTime: &referenceTime,
	})
	if err != nil {
		return nil, err
	}

	if len(result.Chunks) == 0 && seg.SlotType.RequiresGrounding() {
		return nil, faults.Semanticf(faults.CodeScriptUngrounded,
			"no knowledge-base chunks for %s segment %s", seg.SlotType, seg.ID)
	}

	log.Info("Context retrieved", "chunks", len(result.Chunks), "query_time_ms", result.QueryTimeMS)
	return result.Chunks, nil
}

// generate produces the script, records its tone score, and persists it.
func (h *SegmentMakeHandler) generate(ctx context.Context, seg *models.Segment, chunks []models.RAGChunk, referenceTime time.Time, log *slog.Logger) error {
	var text string
	var citations []models.Citation

	if seg.SlotType.MultiSpeaker() {
		conv, err := h.generator.GenerateConversation(ctx, scriptgen.ConversationRequest{
			Format:           conversationFormat(seg.SlotType),
			Host:             h.gen.Personas[0],
			Participants:     h.gen.Personas[1:],
			Topic:            retrieval.SynthesizeQuery(h.gen, seg.SlotType, referenceTime),
			RetrievedContext: chunks,
			FutureYear:       referenceTime.Year(),
		})
		if err != nil {
			return err
		}
		text = formatDialogue(conv.Turns)
		citations = conv.Citations
	} else {
		script, err := h.generator.Generate(ctx, scriptgen.Context{
			DJ:            h.gen.Personas[0],
			SlotType:      seg.SlotType,
			Chunks:        chunks,
			ReferenceTime: referenceTime,
			FutureYear:    referenceTime.Year(),
		})
		if err != nil {
			return err
		}
		text = script.Text
		citations = script.Citations
	}

	score, flags := scriptgen.AnalyzeTone(h.gen, text)
	if _, err := h.tone.RecordScore(ctx, seg.ID, score, flags); err != nil {
		log.Warn("Failed to record tone score", "error", err)
	}
	if !scriptgen.ToneAcceptable(h.gen, score) {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"tone score %d below minimum %d (flags: %s)", score, h.gen.ToneMinScore, strings.Join(flags, ","))
	}

	if err := h.segments.SetScript(ctx, seg.ID, text, citations); err != nil {
		return err
	}
	log.Info("Script generated", "words", len(strings.Fields(text)), "citations", len(citations), "tone_score", score)
	return nil
}

// render synthesizes audio for the script, uploads the raw WAV, and creates
// the pending asset.
func (h *SegmentMakeHandler) render(ctx context.Context, seg *models.Segment, log *slog.Logger) error {
	var wav []byte
	var durationSec float64
	var err error

	if seg.SlotType.MultiSpeaker() {
		wav, durationSec, err = h.renderDialogue(ctx, *seg.ScriptMD)
	} else {
		var res *tts.Result
		res, err = h.tts.Synthesize(ctx, *seg.ScriptMD, h.gen.Personas[0].VoiceID)
		if err == nil {
			wav, durationSec = res.Audio, res.DurationSec
		}
	}
	if err != nil {
		return err
	}

	sum := sha256.Sum256(wav)
	contentHash := hex.EncodeToString(sum[:])
	rawPath := blob.RawPath()

	if err := h.blobs.Upload(ctx, rawPath, wav, "audio/wav"); err != nil {
		return fmt.Errorf("failed to upload raw audio: %w", err)
	}

	asset, err := h.assets.CreateAsset(ctx, contentHash, rawPath)
	if err != nil {
		return err
	}
	if err := h.segments.BindAsset(ctx, seg.ID, asset.ID, &durationSec); err != nil {
		return err
	}

	log.Info("Audio rendered", "asset_id", asset.ID, "duration_sec", durationSec, "bytes", len(wav))
	return nil
}

// renderDialogue synthesizes each turn and concatenates them with the
// configured inter-turn silence.
func (h *SegmentMakeHandler) renderDialogue(ctx context.Context, script string) ([]byte, float64, error) {
	turns := scriptgen.ParseTurns(script)
	if len(turns) == 0 {
		return nil, 0, faults.Semanticf(faults.CodeScriptInvalid, "dialogue script has no parseable turns")
	}

	tmpDir, err := os.MkdirTemp("", "station-render-")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	turnPaths := make([]string, len(turns))
	for i, turn := range turns {
		res, err := h.tts.Synthesize(ctx, turn.Text, h.voiceFor(turn.Speaker))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to synthesize turn %d: %w", i, err)
		}
		p := filepath.Join(tmpDir, fmt.Sprintf("turn-%03d.wav", i))
		if err := os.WriteFile(p, res.Audio, 0644); err != nil {
			return nil, 0, fmt.Errorf("failed to write turn %d: %w", i, err)
		}
		turnPaths[i] = p
	}

	output := filepath.Join(tmpDir, "dialogue.wav")
	if err := audio.AssembleDialogue(ctx, turnPaths, h.ttsCfg.InterTurnSilence, tmpDir, output); err != nil {
		return nil, 0, err
	}

	wav, err := os.ReadFile(output)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read assembled dialogue: %w", err)
	}
	durationSec, err := audio.ProbeDuration(ctx, output)
	if err != nil {
		return nil, 0, err
	}
	return wav, durationSec, nil
}

// voiceFor maps a dialogue speaker label back to a persona voice. Labels are
// generated from persona names, so match on the full name or its first word.
func (h *SegmentMakeHandler) voiceFor(speaker string) string {
	for _, p := range h.gen.Personas {
		first, _, _ := strings.Cut(p.Name, " ")
		if strings.EqualFold(speaker, p.Name) || strings.EqualFold(speaker, first) {
			return p.VoiceID
		}
	}
	return h.gen.Personas[0].VoiceID
}

// conversationFormat maps a multi-speaker slot type to its prompt format.
func conversationFormat(slot models.SlotType) string {
	switch slot {
	case models.SlotInterview:
		return "interview"
	case models.SlotPanel:
		return "panel"
	default:
		return "dialogue"
	}
}

// formatDialogue renders turns back into SPEAKER: utterance lines for
// storage; ParseTurns recovers them at render time.
func formatDialogue(turns []scriptgen.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = strings.ToUpper(t.Speaker) + ": " + t.Text
	}
	return strings.Join(lines, "\n")
}
