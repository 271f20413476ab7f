package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Blueprint is the schema-constrained description of a synthesis request.
// Field shapes mirror the embedded blueprint schema; documents are validated
// against the compiled schema before any field here is trusted.
type Blueprint struct {
	ID            string         `json:"id"`
	Style         string         `json:"style"`
	TempoBPM      int            `json:"tempo_bpm"`
	Key           string         `json:"key"`
	TimeSignature string         `json:"time_signature,omitempty"`
	Sections      []Section      `json:"sections"`
	Lyrics        string         `json:"lyrics"`
	Voice         VoiceSettings  `json:"voice"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type Section struct {
	Name   string   `json:"name"`
	Bars   int      `json:"bars"`
	Energy *float64 `json:"energy,omitempty"`
	Prompt string   `json:"prompt,omitempty"`
}

type VoiceSettings struct {
	VoiceID           string   `json:"voice_id"`
	ModelID           string   `json:"model_id,omitempty"`
	Stability         *float64 `json:"stability,omitempty"`
	SimilarityBoost   *float64 `json:"similarity_boost,omitempty"`
	StyleExaggeration *float64 `json:"style_exaggeration,omitempty"`
	SpeakerBoost      *bool    `json:"speaker_boost,omitempty"`
}

// TotalBars sums the bar counts of every section.
func (b *Blueprint) TotalBars() int {
	total := 0
	for _, section := range b.Sections {
		total += section.Bars
	}
	return total
}

// BeatsPerBar reads the numerator of the time signature, defaulting to 4
// when the signature is absent or malformed (the validator rejects truly
// malformed documents before this is consulted).
func (b *Blueprint) BeatsPerBar() int {
	sig := strings.TrimSpace(b.TimeSignature)
	if sig == "" {
		return 4
	}
	num, _, ok := strings.Cut(sig, "/")
	if !ok {
		return 4
	}
	beats, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || beats < 1 {
		return 4
	}
	return beats
}

// ParseBlueprint decodes raw JSON into a Blueprint without validating it;
// callers run the schema validator first.
func ParseBlueprint(raw []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

// AudioArtifact describes a generated audio file on disk.
type AudioArtifact struct {
	Path      string
	SizeBytes int64
	MimeType  string
}

// Artifact is the record shape consumed by an ArtifactSink.
type Artifact struct {
	Tool        string
	Path        string
	SizeBytes   int64
	MimeType    string
	ModelID     string
	Prompt      string
	CreatedUnix int64
}

// JobStatus values reported by the moment pipeline API.
const (
	JobStatusPending   = "PENDING"
	JobStatusAnalyzing = "ANALYZING"
	JobStatusRendering = "RENDERING"
	JobStatusMixing    = "MIXING"
	JobStatusCompleted = "COMPLETED"
)

// StatusDocument is the moment pipeline's status-poll response.
type StatusDocument struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	OriginalAudioURL string          `json:"original_audio_url,omitempty"`
	BlueprintJSON    json.RawMessage `json:"blueprint_json,omitempty"`
	FinalAudioURL    string          `json:"final_audio_url,omitempty"`
}
