// Package speakers keeps per-video speaker identities stable across chunks
// and owns voice assignment: stock voices round-robin by gender, replaced
// by cloned voices once a clean sample has been registered.
package speakers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"dubber/internal/asr"
	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/store"
)

// Cloner registers a cloned voice from a sample file. The XTTS backend
// satisfies this.
type Cloner interface {
	Clone(ctx context.Context, samplePath, name string) (string, error)
}

// Registry resolves diarization tags to persistent speakers. Safe for
// concurrent use by chunk workers.
type Registry struct {
	store  *store.Store
	logger *slog.Logger

	mu sync.Mutex
}

// NewRegistry constructs a registry over the pipeline store.
func NewRegistry(st *store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{store: st, logger: logger}
}

// Resolve returns the persistent speaker for a diarization tag, creating it
// on first sight. Creation is serialized so concurrent chunks observing the
// same new tag converge on one row, and voice assignment stays round-robin
// by creation order within each gender.
func (r *Registry) Resolve(ctx context.Context, videoID int64, tag string, info asr.SpeakerInfo) (*store.Speaker, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = "SPEAKER_00"
	}

	speaker, err := r.store.SpeakerByKey(ctx, videoID, tag)
	if err == nil {
		return speaker, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the lock; another worker may have created it.
	speaker, err = r.store.SpeakerByKey(ctx, videoID, tag)
	if err == nil {
		return speaker, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	gender := normalizeGender(info.Gender)
	existing, err := r.store.ListSpeakers(ctx, videoID)
	if err != nil {
		return nil, err
	}
	index := 0
	for _, sp := range existing {
		if normalizeGender(sp.Gender) == gender {
			index++
		}
	}

	prosody := emotionProsody(info.Emotion)
	speaker = &store.Speaker{
		VideoID:        videoID,
		DiarizationKey: tag,
		Gender:         gender,
		AgeGroup:       defaultString(info.AgeGroup, "adult"),
		Emotion:        defaultString(info.Emotion, "neutral"),
		VoiceID:        xttsVoice(gender, index),
		Rate:           prosody.Rate,
		Pitch:          prosody.PitchHz,
		Gain:           prosody.GainDB,
	}
	if info.GenderConfidence > 0 {
		confidence := info.GenderConfidence
		speaker.GenderConfidence = &confidence
	}
	if err := r.store.InsertSpeaker(ctx, speaker); err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "registered speaker",
		logging.Int64("video_id", videoID),
		logging.String("tag", tag),
		logging.String("gender", gender),
		logging.String("voice", speaker.VoiceID))
	return speaker, nil
}

// VoiceFor returns the primary and fallback voice ids for a speaker. A
// cloned voice wins on the primary backend; the fallback backend always
// uses its own per-language pool.
func (r *Registry) VoiceFor(ctx context.Context, speaker *store.Speaker, targetLang string) (primary, fallback string, err error) {
	if speaker == nil {
		return "", "", services.Wrap(services.ErrValidation, "speakers", "voice for", "nil speaker", nil)
	}
	primary = speaker.VoiceID
	if speaker.Cloned() {
		primary = speaker.ClonedVoiceID
	}
	index, err := r.genderIndex(ctx, speaker)
	if err != nil {
		return "", "", err
	}
	return primary, edgeVoice(targetLang, speaker.Gender, index), nil
}

func (r *Registry) genderIndex(ctx context.Context, speaker *store.Speaker) (int, error) {
	all, err := r.store.ListSpeakers(ctx, speaker.VideoID)
	if err != nil {
		return 0, err
	}
	index := 0
	for _, sp := range all {
		if sp.ID == speaker.ID {
			return index, nil
		}
		if normalizeGender(sp.Gender) == normalizeGender(speaker.Gender) {
			index++
		}
	}
	return index, nil
}

// EnsureCloned registers a cloned voice for the speaker exactly once. The
// sample must already be a clean vocal excerpt of sufficient length;
// callers gate on that before paying for the call.
func (r *Registry) EnsureCloned(ctx context.Context, speaker *store.Speaker, cloner Cloner, samplePath string) error {
	if speaker.Cloned() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.store.GetSpeaker(ctx, speaker.ID)
	if err != nil {
		return err
	}
	if current.Cloned() {
		speaker.ClonedVoiceID = current.ClonedVoiceID
		speaker.ClonedSamplePath = current.ClonedSamplePath
		return nil
	}

	name := fmt.Sprintf("video%d-%s", speaker.VideoID, speaker.DiarizationKey)
	voiceID, err := cloner.Clone(ctx, samplePath, name)
	if err != nil {
		return err
	}
	speaker.ClonedVoiceID = voiceID
	speaker.ClonedSamplePath = samplePath
	if err := r.store.UpdateSpeaker(ctx, speaker); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "cloned voice registered",
		logging.Int64("video_id", speaker.VideoID),
		logging.String("tag", speaker.DiarizationKey),
		logging.String("voice", voiceID))
	return nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
