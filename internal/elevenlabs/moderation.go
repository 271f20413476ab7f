package elevenlabs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/2023lic14/momentmcp/internal/model"
)

// rejectionClass enumerates the upstream rejection kinds the retry policy
// branches on. Only moderation-class rejections are ever retried.
type rejectionClass int

const (
	rejectionNone rejectionClass = iota
	rejectionModeration
)

// statusPromptRejected is the detail.status value ElevenLabs uses when a
// generation prompt is refused for content-policy reasons.
const statusPromptRejected = "prompt_rejected"

type rejection struct {
	Class           rejectionClass
	SuggestedPrompt string
}

type upstreamErrorBody struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			PromptSuggestion string `json:"prompt_suggestion"`
		} `json:"data"`
	} `json:"detail"`
}

// classifyRejection maps an upstream error response onto a rejection class.
// Anything other than an HTTP 400 carrying the prompt-rejected status is an
// ordinary failure: network errors, auth errors, and rate limits must never
// take the fallback path.
func classifyRejection(statusCode int, body []byte) rejection {
	if statusCode != http.StatusBadRequest || len(body) == 0 {
		return rejection{Class: rejectionNone}
	}
	var parsed upstreamErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return rejection{Class: rejectionNone}
	}
	if parsed.Detail.Status != statusPromptRejected {
		return rejection{Class: rejectionNone}
	}
	return rejection{
		Class:           rejectionModeration,
		SuggestedPrompt: strings.TrimSpace(parsed.Detail.Data.PromptSuggestion),
	}
}

// PromptRejectedError reports a moderation rejection whose one-shot
// fallback retry also failed. Callers surface it with
// original_prompt_rejected set.
type PromptRejectedError struct {
	Rejection      *model.ProviderError
	RetryErr       *model.ProviderError
	FallbackPrompt string
}

func (e *PromptRejectedError) Error() string {
	return fmt.Sprintf("prompt rejected by moderation and retry failed: %v", e.RetryErr)
}

func (e *PromptRejectedError) Unwrap() error {
	return e.RetryErr
}
