package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2023lic14/momentmcp/internal/model"
)

const (
	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultTimeout      = 30 * time.Second
	defaultSpeechModel  = "eleven_multilingual_v2"
	defaultMusicModel   = "music_v1"
	defaultOutputFormat = "mp3_44100_128"
)

// Client calls the ElevenLabs text-to-speech and music-generation endpoints
// and persists returned audio under OutputDir.
type Client struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	OutputDir      string
	DefaultVoiceID string

	// Sink, when set, records every persisted artifact out of band.
	Sink model.ArtifactSink
}

func NewClient(apiKey, voiceID, outputDir string) *Client {
	return &Client{
		APIKey:         strings.TrimSpace(apiKey),
		BaseURL:        defaultBaseURL,
		HTTPClient:     &http.Client{Timeout: defaultTimeout},
		OutputDir:      outputDir,
		DefaultVoiceID: strings.TrimSpace(voiceID),
	}
}

// SpeechRequest describes one text-to-speech call.
type SpeechRequest struct {
	Text     string
	VoiceID  string
	ModelID  string
	Settings model.VoiceSettings
}

type speechPayload struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       *float64 `json:"stability,omitempty"`
	SimilarityBoost *float64 `json:"similarity_boost,omitempty"`
	Style           *float64 `json:"style,omitempty"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost,omitempty"`
}

// SynthesizeSpeech renders text with the given voice and writes the audio
// to the configured output directory.
func (c *Client) SynthesizeSpeech(ctx context.Context, req SpeechRequest) (*model.AudioArtifact, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, &model.ProviderError{
			Code:    model.CodeMissingCredential,
			Message: "missing ElevenLabs API key",
		}
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, &model.ProviderError{
			Code:    model.CodeMissingInput,
			Message: "text is required",
		}
	}

	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = c.DefaultVoiceID
	}
	if voiceID == "" {
		return nil, &model.ProviderError{
			Code:    model.CodeMissingInput,
			Message: "voice_id is required",
		}
	}

	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		modelID = defaultSpeechModel
	}

	payload, err := json.Marshal(speechPayload{
		Text:          text,
		ModelID:       modelID,
		VoiceSettings: knobsFromSettings(req.Settings),
	})
	if err != nil {
		return nil, &model.ProviderError{
			Code:    model.CodeUpstreamFailed,
			Message: "failed to marshal TTS request",
			Cause:   err,
		}
	}

	reqURL := c.baseURL() + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	audio, perr := c.postForAudio(ctx, reqURL, payload)
	if perr != nil {
		return nil, perr
	}

	artifact, err := c.writeArtifact("speech", ".mp3", "audio/mpeg", audio)
	if err != nil {
		return nil, err
	}
	c.recordArtifact(ctx, "synthesize_preview", artifact, modelID, text)
	return artifact, nil
}

func knobsFromSettings(s model.VoiceSettings) *voiceSettings {
	if s.Stability == nil && s.SimilarityBoost == nil && s.StyleExaggeration == nil && s.SpeakerBoost == nil {
		return nil
	}
	return &voiceSettings{
		Stability:       s.Stability,
		SimilarityBoost: s.SimilarityBoost,
		Style:           s.StyleExaggeration,
		UseSpeakerBoost: s.SpeakerBoost,
	}
}

func (c *Client) baseURL() string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return strings.TrimRight(base, "/")
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// postForAudio issues a JSON POST expecting binary audio back. Non-success
// responses are mapped into ProviderError with the raw body preserved.
func (c *Client) postForAudio(ctx context.Context, reqURL string, payload []byte) ([]byte, *model.ProviderError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &model.ProviderError{
			Code:    model.CodeUpstreamFailed,
			Message: "failed to build request",
			Cause:   err,
		}
	}
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &model.ProviderError{
			Code:      model.CodeUpstreamFailed,
			Message:   "request failed",
			Retryable: true,
			Cause:     err,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.ProviderError{
			Code:       model.CodeUpstreamFailed,
			Message:    "failed to read response",
			Retryable:  true,
			StatusCode: resp.StatusCode,
			Cause:      err,
		}
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return body, nil
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = fmt.Sprintf("elevenlabs returned status %d", resp.StatusCode)
	}
	return nil, &model.ProviderError{
		Code:       model.CodeUpstreamFailed,
		Message:    message,
		Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError,
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}
