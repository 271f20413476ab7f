package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/config"
	"github.com/2023lic14/momentmcp/internal/elevenlabs"
	"github.com/2023lic14/momentmcp/internal/moments"
)

const (
	toolNameValidateBlueprint = "validate_blueprint"
	toolNameSynthesizePreview = "synthesize_preview"
	toolNameCreateSong        = "create_song"
	toolNameCreateMoment      = "create_moment"

	// Ordinary tools answer quickly; song generation waits on upstream
	// rendering and gets a long budget. create_moment's budget comes from
	// its own timeout_ms argument, so its ceiling sits above the poll
	// loop's maximum.
	defaultToolTimeout = 30 * time.Second
	songToolTimeout    = 300 * time.Second
	momentToolTimeout  = moments.MaxPollTimeout + time.Minute
)

var toolOrder = []string{
	toolNameValidateBlueprint,
	toolNameSynthesizePreview,
	toolNameCreateSong,
	toolNameCreateMoment,
}

type toolHandler func(context.Context, map[string]any) (toolCallResult, *toolExecutionError)

type toolDefinition struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	handler      toolHandler
	timeout      time.Duration
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content           []toolContentItem `json:"content"`
	StructuredContent any               `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

type toolContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolExecutionError struct {
	Code      string
	Message   string
	Retryable bool
	// Detail carries structured diagnostics (upstream status, raw body,
	// validator findings) into the failure envelope.
	Detail map[string]any
}

// executor binds the tool registry to the client components for one
// conversation. Stateful sessions each own a fresh instance; stateless mode
// shares a single one.
type executor struct {
	cfg       *config.Config
	validator *blueprint.Validator
	synth     *elevenlabs.Client
	pipeline  *moments.Client
	tools     map[string]toolDefinition
}

func newExecutor(cfg *config.Config, validator *blueprint.Validator, synth *elevenlabs.Client, pipeline *moments.Client) *executor {
	e := &executor{
		cfg:       cfg,
		validator: validator,
		synth:     synth,
		pipeline:  pipeline,
	}
	e.tools = e.buildToolRegistry()
	return e
}

func (e *executor) buildToolRegistry() map[string]toolDefinition {
	return map[string]toolDefinition{
		toolNameValidateBlueprint: {
			Name:        toolNameValidateBlueprint,
			Description: "Validate a song blueprint against the blueprint schema.",
			InputSchema: validateBlueprintInputSchema(),
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"valid":  map[string]any{"type": "boolean"},
					"errors": schemaErrorListSchema(),
				},
			},
			handler: e.handleValidateBlueprint,
			timeout: defaultToolTimeout,
		},
		toolNameSynthesizePreview: {
			Name:        toolNameSynthesizePreview,
			Description: "Synthesize a spoken/sung preview of text or blueprint lyrics with ElevenLabs TTS.",
			InputSchema: synthesizePreviewInputSchema(),
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"output_path": map[string]any{"type": "string"},
					"size_bytes":  map[string]any{"type": "integer"},
					"mime_type":   map[string]any{"type": "string"},
					"voice_id":    map[string]any{"type": "string"},
					"model_id":    map[string]any{"type": "string"},
				},
			},
			handler: e.handleSynthesizePreview,
			timeout: defaultToolTimeout,
		},
		toolNameCreateSong: {
			Name:        toolNameCreateSong,
			Description: "Generate a full song from a blueprint with ElevenLabs Music.",
			InputSchema: createSongInputSchema(),
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"output_path":              map[string]any{"type": "string"},
					"size_bytes":               map[string]any{"type": "integer"},
					"mime_type":                map[string]any{"type": "string"},
					"prompt_used":              map[string]any{"type": "string"},
					"music_length_ms":          map[string]any{"type": "integer"},
					"model_id":                 map[string]any{"type": "string"},
					"output_format":            map[string]any{"type": "string"},
					"original_prompt_rejected": map[string]any{"type": "boolean"},
				},
			},
			handler: e.handleCreateSong,
			timeout: songToolTimeout,
		},
		toolNameCreateMoment: {
			Name:        toolNameCreateMoment,
			Description: "Submit audio to the moment rendering pipeline and wait for completion.",
			InputSchema: createMomentInputSchema(),
			OutputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"job_id":          map[string]any{"type": "string"},
					"completed":       map[string]any{"type": "boolean"},
					"timed_out":       map[string]any{"type": "boolean"},
					"status":          map[string]any{"type": "string"},
					"final_audio_url": map[string]any{"type": "string"},
				},
			},
			handler: e.handleCreateMoment,
			timeout: momentToolTimeout,
		},
	}
}

func (e *executor) listTools() []toolDefinition {
	tools := make([]toolDefinition, 0, len(e.tools))
	for _, name := range toolOrder {
		if tool, ok := e.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// processToolsCall parses params, dispatches to the named tool under its
// timeout, and maps every failure into the uniform result envelope. Only
// malformed params surface as JSON-RPC errors.
func (e *executor) processToolsCall(ctx context.Context, rawParams json.RawMessage) (toolCallResult, *rpcError) {
	params, err := parseToolsCallParams(rawParams)
	if err != nil {
		canonicalCode := "INVALID_FIELD"
		var vErr validationError
		if errors.As(err, &vErr) && vErr.canonicalCode != "" {
			canonicalCode = vErr.canonicalCode
		}
		return toolCallResult{}, &rpcError{
			Code:    codeInvalidRequest,
			Message: err.Error(),
			Data:    &rpcErrorData{Code: canonicalCode},
		}
	}

	tool, ok := e.tools[params.Name]
	if !ok {
		return newToolErrorResult(toolExecutionError{
			Code:    "METHOD_NOT_FOUND",
			Message: fmt.Sprintf("unknown tool: %s", params.Name),
		}), nil
	}

	toolCtx := ctx
	if tool.timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, tool.timeout)
		defer cancel()
	}

	result, toolErr := tool.handler(toolCtx, params.Arguments)
	if toolErr != nil {
		return newToolErrorResult(*toolErr), nil
	}
	return result, nil
}

func parseToolsCallParams(raw json.RawMessage) (toolsCallParams, error) {
	if len(raw) == 0 {
		return toolsCallParams{}, validationError{
			message:       "params is required",
			canonicalCode: "MISSING_FIELD",
		}
	}

	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolsCallParams{}, validationError{
			message:       "invalid tools/call params",
			canonicalCode: "INVALID_FIELD",
		}
	}

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return toolsCallParams{}, validationError{
			message:       "tools/call params.name is required",
			canonicalCode: "MISSING_FIELD",
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}
	return params, nil
}

func newToolErrorResult(toolErr toolExecutionError) toolCallResult {
	structured := map[string]any{
		"code":      toolErr.Code,
		"message":   toolErr.Message,
		"retryable": toolErr.Retryable,
	}
	for key, value := range toolErr.Detail {
		structured[key] = value
	}
	return toolCallResult{
		IsError: true,
		Content: []toolContentItem{
			{Type: "text", Text: fmt.Sprintf("ERROR: %s: %s", toolErr.Code, toolErr.Message)},
		},
		StructuredContent: map[string]any{"error": structured},
	}
}

func newToolTextResult(text string, structured any) toolCallResult {
	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: text}},
		StructuredContent: structured,
	}
}
