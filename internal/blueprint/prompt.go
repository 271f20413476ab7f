package blueprint

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/2023lic14/momentmcp/internal/model"
)

// Duration bounds accepted by the music generation API, in milliseconds.
const (
	MinSongLengthMS = 10000
	MaxSongLengthMS = 300000
)

// ClampSongLength forces a requested length into the accepted range.
func ClampSongLength(ms int) int {
	if ms < MinSongLengthMS {
		return MinSongLengthMS
	}
	if ms > MaxSongLengthMS {
		return MaxSongLengthMS
	}
	return ms
}

// EstimateDurationMS derives a song length from tempo and total bars:
// totalBars x beatsPerBar x (60000/bpm), clamped to the accepted range.
func EstimateDurationMS(bp *model.Blueprint) int {
	bpm := bp.TempoBPM
	if bpm <= 0 {
		bpm = 120
	}
	ms := float64(bp.TotalBars()) * float64(bp.BeatsPerBar()) * (60000.0 / float64(bpm))
	return ClampSongLength(int(ms))
}

// BuildPrompt renders a structured generation prompt from blueprint fields.
// Section prompts and lyrics survive verbatim so the upstream model sees the
// author's intent rather than a paraphrase.
func BuildPrompt(bp *model.Blueprint, instrumental bool) string {
	return buildPromptWithStyle(bp, bp.Style, instrumental)
}

func buildPromptWithStyle(bp *model.Blueprint, style string, instrumental bool) string {
	var sb strings.Builder

	sig := bp.TimeSignature
	if strings.TrimSpace(sig) == "" {
		sig = "4/4"
	}
	fmt.Fprintf(&sb, "%s song in %s, %d BPM, %s time.\n", strings.TrimSpace(style), bp.Key, bp.TempoBPM, sig)

	if len(bp.Sections) > 0 {
		sb.WriteString("Structure:")
		for _, section := range bp.Sections {
			fmt.Fprintf(&sb, " %s (%d bars", section.Name, section.Bars)
			if section.Energy != nil {
				fmt.Fprintf(&sb, ", energy %.1f", *section.Energy)
			}
			sb.WriteString(")")
			if p := strings.TrimSpace(section.Prompt); p != "" {
				fmt.Fprintf(&sb, " - %s", p)
			}
			sb.WriteString(";")
		}
		sb.WriteString("\n")
	}

	if instrumental {
		sb.WriteString("Instrumental only, no vocals.\n")
	} else if lyrics := strings.TrimSpace(bp.Lyrics); lyrics != "" {
		sb.WriteString("Sung vocals with these lyrics:\n")
		sb.WriteString(lyrics)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String())
}

// BuildFallbackPrompt rebuilds the structured prompt around a sanitized
// style descriptor. Used after a moderation rejection when the upstream
// response offers no replacement prompt of its own.
func BuildFallbackPrompt(bp *model.Blueprint, instrumental bool) string {
	return buildPromptWithStyle(bp, SanitizeStyle(bp.Style), instrumental)
}

var attributionPattern = regexp.MustCompile(`(?i)\s*(?:,\s*)?(?:inspired by|in the style of)[^,.;]*`)

// SanitizeStyle strips attribution phrases referencing named influences
// ("inspired by ...", "in the style of ...") from a style descriptor.
func SanitizeStyle(style string) string {
	cleaned := attributionPattern.ReplaceAllString(style, "")
	cleaned = strings.Trim(cleaned, " ,.;")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return "original contemporary music"
	}
	return cleaned
}

// IsJSONPayload reports whether free text parses as a JSON object or array.
// Caller-supplied prompt text that is actually an embedded JSON document is
// ignored in favor of the structured prompt.
func IsJSONPayload(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return false
	}
	var v any
	return json.Unmarshal([]byte(trimmed), &v) == nil
}
