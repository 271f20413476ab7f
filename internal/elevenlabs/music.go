package elevenlabs

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/model"
)

// SongRequest describes one music-generation call. LengthMS of zero means
// "estimate from the blueprint".
type SongRequest struct {
	Blueprint         *model.Blueprint
	PromptOverride    string
	ModelID           string
	LengthMS          int
	ForceInstrumental bool
	OutputFormat      string
}

// SongResult reports a successful composition, including which prompt was
// actually sent and whether the moderation fallback path produced it.
type SongResult struct {
	Artifact           *model.AudioArtifact
	PromptUsed         string
	LengthMS           int
	ModelID            string
	OutputFormat       string
	ModerationFallback bool
}

type musicPayload struct {
	Prompt            string `json:"prompt"`
	MusicLengthMS     int    `json:"music_length_ms"`
	ModelID           string `json:"model_id"`
	ForceInstrumental bool   `json:"force_instrumental"`
}

// ComposeSong derives a prompt and duration from the blueprint, issues the
// generation request, and on a moderation-class rejection retries exactly
// once with a policy-safe replacement prompt. Transient or auth failures
// never trigger the retry.
func (c *Client) ComposeSong(ctx context.Context, req SongRequest) (*SongResult, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, &model.ProviderError{
			Code:    model.CodeMissingCredential,
			Message: "missing ElevenLabs API key",
		}
	}
	if req.Blueprint == nil {
		return nil, &model.ProviderError{
			Code:    model.CodeMissingInput,
			Message: "blueprint is required",
		}
	}

	// Any caller-supplied length is clamped into range, including
	// non-positive values. Only an absent length derives from the blueprint.
	lengthMS := req.LengthMS
	if lengthMS != 0 {
		lengthMS = blueprint.ClampSongLength(lengthMS)
	} else {
		lengthMS = blueprint.EstimateDurationMS(req.Blueprint)
	}

	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		modelID = defaultMusicModel
	}
	format := strings.TrimSpace(req.OutputFormat)
	if format == "" {
		format = defaultOutputFormat
	}

	prompt := strings.TrimSpace(req.PromptOverride)
	if prompt == "" || blueprint.IsJSONPayload(prompt) {
		prompt = blueprint.BuildPrompt(req.Blueprint, req.ForceInstrumental)
	}

	call := musicPayload{
		MusicLengthMS:     lengthMS,
		ModelID:           modelID,
		ForceInstrumental: req.ForceInstrumental,
	}

	call.Prompt = prompt
	audio, perr := c.requestMusic(ctx, call, format)
	if perr == nil {
		return c.finishSong(ctx, audio, prompt, lengthMS, modelID, format, false)
	}

	rejection := classifyRejection(perr.StatusCode, []byte(perr.Body))
	if rejection.Class != rejectionModeration {
		return nil, perr
	}

	fallback := strings.TrimSpace(rejection.SuggestedPrompt)
	if fallback == "" {
		fallback = blueprint.BuildFallbackPrompt(req.Blueprint, req.ForceInstrumental)
	}

	call.Prompt = fallback
	audio, retryErr := c.requestMusic(ctx, call, format)
	if retryErr != nil {
		return nil, &PromptRejectedError{
			Rejection:      perr,
			RetryErr:       retryErr,
			FallbackPrompt: fallback,
		}
	}
	return c.finishSong(ctx, audio, fallback, lengthMS, modelID, format, true)
}

func (c *Client) requestMusic(ctx context.Context, call musicPayload, format string) ([]byte, *model.ProviderError) {
	payload, err := json.Marshal(call)
	if err != nil {
		return nil, &model.ProviderError{
			Code:    model.CodeUpstreamFailed,
			Message: "failed to marshal music request",
			Cause:   err,
		}
	}
	reqURL := c.baseURL() + "/v1/music?output_format=" + url.QueryEscape(format)
	return c.postForAudio(ctx, reqURL, payload)
}

func (c *Client) finishSong(ctx context.Context, audio []byte, prompt string, lengthMS int, modelID, format string, fallback bool) (*SongResult, error) {
	artifact, err := c.writeArtifact("song", extensionForFormat(format), mimeForFormat(format), audio)
	if err != nil {
		return nil, err
	}
	c.recordArtifact(ctx, "create_song", artifact, modelID, prompt)
	return &SongResult{
		Artifact:           artifact,
		PromptUsed:         prompt,
		LengthMS:           lengthMS,
		ModelID:            modelID,
		OutputFormat:       format,
		ModerationFallback: fallback,
	}, nil
}

func extensionForFormat(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return ".mp3"
	case strings.HasPrefix(format, "pcm"), strings.HasPrefix(format, "wav"):
		return ".wav"
	case strings.HasPrefix(format, "opus"):
		return ".opus"
	default:
		return ".mp3"
	}
}

func mimeForFormat(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"), strings.HasPrefix(format, "wav"):
		return "audio/wav"
	case strings.HasPrefix(format, "opus"):
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
