package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/elevenlabs"
	"github.com/2023lic14/momentmcp/internal/model"
	"github.com/2023lic14/momentmcp/internal/moments"
)

func (e *executor) handleValidateBlueprint(_ context.Context, args map[string]any) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{"blueprint": {}}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	doc, present, err := blueprintArgument(args, "blueprint")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if !present {
		return toolCallResult{}, &toolExecutionError{Code: "MISSING_INPUT", Message: "blueprint is required"}
	}

	valid, findings := e.validator.Validate(doc)
	if !valid {
		return toolCallResult{}, &toolExecutionError{
			Code:    "VALIDATION_FAILED",
			Message: fmt.Sprintf("blueprint failed validation with %d error(s)", len(findings)),
			Detail:  map[string]any{"valid": false, "errors": findings},
		}
	}

	return newToolTextResult("blueprint is valid", map[string]any{
		"valid":  true,
		"errors": []blueprint.SchemaError{},
	}), nil
}

func (e *executor) handleSynthesizePreview(ctx context.Context, args map[string]any) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"text":               {},
		"blueprint":          {},
		"voice_id":           {},
		"model_id":           {},
		"stability":          {},
		"similarity_boost":   {},
		"style_exaggeration": {},
		"speaker_boost":      {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	text, err := parseOptionalString(args, "text")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	voiceID, err := parseOptionalString(args, "voice_id")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	modelID, err := parseOptionalString(args, "model_id")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	settings := model.VoiceSettings{}
	if settings.Stability, err = parseOptionalUnitNumber(args, "stability"); err != nil {
		return toolCallResult{}, invalidRangeError(err)
	}
	if settings.SimilarityBoost, err = parseOptionalUnitNumber(args, "similarity_boost"); err != nil {
		return toolCallResult{}, invalidRangeError(err)
	}
	if settings.StyleExaggeration, err = parseOptionalUnitNumber(args, "style_exaggeration"); err != nil {
		return toolCallResult{}, invalidRangeError(err)
	}
	if settings.SpeakerBoost, err = parseOptionalBool(args, "speaker_boost"); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	bp, toolErr := e.optionalBlueprint(args)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	// A blueprint fills any gaps the caller left: lyrics become the text,
	// the blueprint voice supplies the id and knobs.
	if bp != nil {
		if text == "" {
			text = bp.Lyrics
		}
		if voiceID == "" {
			voiceID = bp.Voice.VoiceID
		}
		if modelID == "" {
			modelID = bp.Voice.ModelID
		}
		if settings.Stability == nil {
			settings.Stability = bp.Voice.Stability
		}
		if settings.SimilarityBoost == nil {
			settings.SimilarityBoost = bp.Voice.SimilarityBoost
		}
		if settings.StyleExaggeration == nil {
			settings.StyleExaggeration = bp.Voice.StyleExaggeration
		}
		if settings.SpeakerBoost == nil {
			settings.SpeakerBoost = bp.Voice.SpeakerBoost
		}
	}

	if strings.TrimSpace(text) == "" {
		return toolCallResult{}, &toolExecutionError{
			Code:    "MISSING_INPUT",
			Message: "text is required (directly or via blueprint lyrics)",
		}
	}

	artifact, synthErr := e.synth.SynthesizeSpeech(ctx, elevenlabs.SpeechRequest{
		Text:     text,
		VoiceID:  voiceID,
		ModelID:  modelID,
		Settings: settings,
	})
	if synthErr != nil {
		return toolCallResult{}, mapClientError(synthErr)
	}

	usedVoice := voiceID
	if usedVoice == "" {
		usedVoice = e.synth.DefaultVoiceID
	}
	text = fmt.Sprintf("preview written to %s (%d bytes)", artifact.Path, artifact.SizeBytes)
	return newToolTextResult(text, map[string]any{
		"output_path": artifact.Path,
		"size_bytes":  artifact.SizeBytes,
		"mime_type":   artifact.MimeType,
		"voice_id":    usedVoice,
		"model_id":    modelID,
	}), nil
}

func (e *executor) handleCreateSong(ctx context.Context, args map[string]any) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"blueprint":          {},
		"prompt":             {},
		"model_id":           {},
		"music_length_ms":    {},
		"force_instrumental": {},
		"output_format":      {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	bp, toolErr := e.requiredBlueprint(args)
	if toolErr != nil {
		return toolCallResult{}, toolErr
	}

	prompt, err := parseOptionalString(args, "prompt")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	modelID, err := parseOptionalString(args, "model_id")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	outputFormat, err := parseOptionalString(args, "output_format")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	lengthMS, _, err := parseOptionalInteger(args, "music_length_ms")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	forceInstrumental, err := parseOptionalBool(args, "force_instrumental")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	req := elevenlabs.SongRequest{
		Blueprint:      bp,
		PromptOverride: prompt,
		ModelID:        modelID,
		LengthMS:       lengthMS,
		OutputFormat:   outputFormat,
	}
	if forceInstrumental != nil {
		req.ForceInstrumental = *forceInstrumental
	}

	result, composeErr := e.synth.ComposeSong(ctx, req)
	if composeErr != nil {
		var rejected *elevenlabs.PromptRejectedError
		if errors.As(composeErr, &rejected) {
			detail := map[string]any{
				"original_prompt_rejected": true,
				"suggested_prompt":         rejected.FallbackPrompt,
			}
			if rejected.RetryErr != nil {
				detail["status"] = rejected.RetryErr.StatusCode
				detail["body"] = rejected.RetryErr.Body
			}
			return toolCallResult{}, &toolExecutionError{
				Code:    "PROMPT_REJECTED",
				Message: composeErr.Error(),
				Detail:  detail,
			}
		}
		return toolCallResult{}, mapClientError(composeErr)
	}

	text := fmt.Sprintf("song written to %s (%d bytes, %d ms)", result.Artifact.Path, result.Artifact.SizeBytes, result.LengthMS)
	return newToolTextResult(text, map[string]any{
		"output_path":              result.Artifact.Path,
		"size_bytes":               result.Artifact.SizeBytes,
		"mime_type":                result.Artifact.MimeType,
		"prompt_used":              result.PromptUsed,
		"music_length_ms":          result.LengthMS,
		"model_id":                 result.ModelID,
		"output_format":            result.OutputFormat,
		"original_prompt_rejected": result.ModerationFallback,
	}), nil
}

func (e *executor) handleCreateMoment(ctx context.Context, args map[string]any) (toolCallResult, *toolExecutionError) {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"audio_url":        {},
		"audio_path":       {},
		"filename":         {},
		"blueprint_json":   {},
		"output_kind":      {},
		"api_base_url":     {},
		"poll_interval_ms": {},
		"timeout_ms":       {},
	}); err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	audioURL, err := parseOptionalString(args, "audio_url")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	audioPath, err := parseOptionalString(args, "audio_path")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if audioURL == "" && audioPath == "" {
		return toolCallResult{}, &toolExecutionError{
			Code:    "MISSING_INPUT",
			Message: "one of audio_url or audio_path is required",
		}
	}
	if audioURL != "" && audioPath != "" {
		return toolCallResult{}, &toolExecutionError{
			Code:    "INVALID_FIELD",
			Message: "audio_url and audio_path are mutually exclusive",
		}
	}

	filename, err := parseOptionalString(args, "filename")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	blueprintJSON, err := parseOptionalString(args, "blueprint_json")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	outputKind, err := parseOptionalString(args, "output_kind")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	baseURL, err := parseOptionalString(args, "api_base_url")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}

	pollIntervalMS, _, err := parseOptionalInteger(args, "poll_interval_ms")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if pollIntervalMS == 0 {
		pollIntervalMS = 2000
	}
	timeoutMS, _, err := parseOptionalInteger(args, "timeout_ms")
	if err != nil {
		return toolCallResult{}, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if timeoutMS == 0 {
		timeoutMS = 600000
	}

	if blueprintJSON != "" {
		valid, findings := e.validator.ValidateJSON([]byte(blueprintJSON))
		if !valid {
			return toolCallResult{}, &toolExecutionError{
				Code:    "VALIDATION_FAILED",
				Message: fmt.Sprintf("blueprint_json failed validation with %d error(s)", len(findings)),
				Detail:  map[string]any{"errors": findings},
			}
		}
	}

	audio, mimeType, loadErr := loadAudio(ctx, audioURL, audioPath)
	if loadErr != nil {
		return toolCallResult{}, loadErr
	}
	if filename == "" {
		filename = deriveFilename(audioURL, audioPath)
	}

	jobID, submitErr := e.pipeline.Submit(ctx, moments.SubmitRequest{
		Audio:         audio,
		Filename:      filename,
		MimeType:      mimeType,
		BlueprintJSON: blueprintJSON,
		OutputKind:    outputKind,
		BaseURL:       baseURL,
	})
	if submitErr != nil {
		return toolCallResult{}, mapClientError(submitErr)
	}

	outcome, pollErr := e.pipeline.AwaitCompletion(
		ctx,
		jobID,
		baseURL,
		time.Duration(pollIntervalMS)*time.Millisecond,
		time.Duration(timeoutMS)*time.Millisecond,
	)
	if pollErr != nil {
		return toolCallResult{}, mapClientError(pollErr)
	}

	structured := map[string]any{
		"job_id":          outcome.JobID,
		"completed":       outcome.Completed,
		"timed_out":       outcome.TimedOut,
		"status":          outcome.Status.Status,
		"final_audio_url": outcome.Status.FinalAudioURL,
	}
	var text string
	switch {
	case outcome.Completed:
		text = fmt.Sprintf("moment %s completed", outcome.JobID)
	case outcome.TimedOut:
		text = fmt.Sprintf("moment %s still running after timeout (last status %s)", outcome.JobID, outcome.Status.Status)
	default:
		text = fmt.Sprintf("moment %s status %s", outcome.JobID, outcome.Status.Status)
	}
	return newToolTextResult(text, structured), nil
}

// optionalBlueprint extracts, validates, and decodes the blueprint argument
// when present. A failing blueprint short-circuits before any network call.
func (e *executor) optionalBlueprint(args map[string]any) (*model.Blueprint, *toolExecutionError) {
	doc, present, err := blueprintArgument(args, "blueprint")
	if err != nil {
		return nil, &toolExecutionError{Code: "INVALID_FIELD", Message: err.Error()}
	}
	if !present {
		return nil, nil
	}

	valid, findings := e.validator.Validate(doc)
	if !valid {
		return nil, &toolExecutionError{
			Code:    "VALIDATION_FAILED",
			Message: fmt.Sprintf("blueprint failed validation with %d error(s)", len(findings)),
			Detail:  map[string]any{"errors": findings},
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, &toolExecutionError{Code: "INVALID_FIELD", Message: "blueprint could not be re-encoded: " + err.Error()}
	}
	bp, err := model.ParseBlueprint(raw)
	if err != nil {
		return nil, &toolExecutionError{Code: "INVALID_FIELD", Message: "blueprint could not be decoded: " + err.Error()}
	}
	return bp, nil
}

func (e *executor) requiredBlueprint(args map[string]any) (*model.Blueprint, *toolExecutionError) {
	bp, toolErr := e.optionalBlueprint(args)
	if toolErr != nil {
		return nil, toolErr
	}
	if bp == nil {
		return nil, &toolExecutionError{Code: "MISSING_INPUT", Message: "blueprint is required"}
	}
	return bp, nil
}

// mapClientError converts a boundary error into an envelope failure with
// structured diagnostics; nothing from the client layer escapes as a fault.
func mapClientError(err error) *toolExecutionError {
	var perr *model.ProviderError
	if errors.As(err, &perr) {
		detail := map[string]any{}
		if perr.StatusCode != 0 {
			detail["status"] = perr.StatusCode
		}
		if perr.Body != "" {
			detail["body"] = perr.Body
		}
		return &toolExecutionError{
			Code:      perr.Code,
			Message:   perr.Message,
			Retryable: perr.Retryable,
			Detail:    detail,
		}
	}
	return &toolExecutionError{
		Code:    "INTERNAL",
		Message: err.Error(),
	}
}

func invalidRangeError(err error) *toolExecutionError {
	code := "INVALID_FIELD"
	var vErr validationError
	if errors.As(err, &vErr) && vErr.canonicalCode != "" {
		code = vErr.canonicalCode
	}
	return &toolExecutionError{Code: code, Message: err.Error()}
}

func loadAudio(ctx context.Context, audioURL, audioPath string) ([]byte, string, *toolExecutionError) {
	if audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, "", &toolExecutionError{
				Code:    "INVALID_FIELD",
				Message: fmt.Sprintf("cannot read audio_path: %v", err),
			}
		}
		return data, mimeForFilename(audioPath), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, "", &toolExecutionError{
			Code:    "INVALID_FIELD",
			Message: fmt.Sprintf("invalid audio_url: %v", err),
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", &toolExecutionError{
			Code:      "UPSTREAM_FAILED",
			Message:   fmt.Sprintf("fetch audio_url: %v", err),
			Retryable: true,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", &toolExecutionError{
			Code:    "UPSTREAM_FAILED",
			Message: fmt.Sprintf("fetch audio_url: status %d", resp.StatusCode),
			Detail:  map[string]any{"status": resp.StatusCode},
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &toolExecutionError{
			Code:      "UPSTREAM_FAILED",
			Message:   fmt.Sprintf("read audio_url body: %v", err),
			Retryable: true,
		}
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mimeForFilename(audioURL)
	}
	return data, mimeType, nil
}

func mimeForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

func deriveFilename(audioURL, audioPath string) string {
	if audioPath != "" {
		return filepath.Base(audioPath)
	}
	trimmed := strings.SplitN(audioURL, "?", 2)[0]
	base := filepath.Base(trimmed)
	if base == "" || base == "." || base == "/" {
		return "audio.mp3"
	}
	return base
}
