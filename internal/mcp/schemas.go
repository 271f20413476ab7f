package mcp

import (
	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/moments"
)

// Tool input schemas, advertised verbatim through tools/list. The blueprint
// argument is described loosely here; the compiled blueprint schema is the
// authority and runs on every call.

func blueprintArgumentSchema() map[string]any {
	return map[string]any{
		"type":        []any{"object", "string"},
		"description": "Song blueprint document, inline or as a JSON string.",
	}
}

func schemaErrorListSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{"type": "string"},
				"message":  map[string]any{"type": "string"},
			},
		},
	}
}

func validateBlueprintInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"blueprint": blueprintArgumentSchema(),
		},
		"required": []string{"blueprint"},
	}
}

func synthesizePreviewInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text to speak. Defaults to the blueprint lyrics when omitted.",
			},
			"blueprint": blueprintArgumentSchema(),
			"voice_id":  map[string]any{"type": "string"},
			"model_id":  map[string]any{"type": "string"},
			"stability": map[string]any{
				"type": "number", "minimum": 0, "maximum": 1,
			},
			"similarity_boost": map[string]any{
				"type": "number", "minimum": 0, "maximum": 1,
			},
			"style_exaggeration": map[string]any{
				"type": "number", "minimum": 0, "maximum": 1,
			},
			"speaker_boost": map[string]any{"type": "boolean"},
		},
	}
}

func createSongInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"blueprint": blueprintArgumentSchema(),
			"prompt": map[string]any{
				"type":        "string",
				"description": "Free-text prompt override; ignored when it is itself a JSON payload.",
			},
			"model_id": map[string]any{"type": "string"},
			"music_length_ms": map[string]any{
				"type":    "integer",
				"minimum": blueprint.MinSongLengthMS,
				"maximum": blueprint.MaxSongLengthMS,
			},
			"force_instrumental": map[string]any{"type": "boolean"},
			"output_format":      map[string]any{"type": "string"},
		},
		"required": []string{"blueprint"},
	}
}

func createMomentInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"audio_url":  map[string]any{"type": "string"},
			"audio_path": map[string]any{"type": "string"},
			"filename":   map[string]any{"type": "string"},
			"blueprint_json": map[string]any{
				"type":        "string",
				"description": "Optional blueprint JSON forwarded to the pipeline.",
			},
			"output_kind": map[string]any{
				"type": "string",
				"enum": []string{"preview", "song"},
			},
			"api_base_url": map[string]any{"type": "string"},
			"poll_interval_ms": map[string]any{
				"type":    "integer",
				"minimum": int(moments.MinPollInterval.Milliseconds()),
				"maximum": int(moments.MaxPollInterval.Milliseconds()),
				"default": 2000,
			},
			"timeout_ms": map[string]any{
				"type":    "integer",
				"minimum": int(moments.MinPollTimeout.Milliseconds()),
				"maximum": int(moments.MaxPollTimeout.Milliseconds()),
				"default": 600000,
			},
		},
	}
}
