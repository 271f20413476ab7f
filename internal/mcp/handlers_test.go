package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/config"
	"github.com/2023lic14/momentmcp/internal/elevenlabs"
	"github.com/2023lic14/momentmcp/internal/moments"
)

func newTestExecutor(t *testing.T, upstream http.HandlerFunc) *executor {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	validator, err := blueprint.CompileDefault("")
	if err != nil {
		t.Fatalf("CompileDefault: %v", err)
	}

	synth := elevenlabs.NewClient("test-key", "voice-1", cfg.OutputDir)
	pipeline := moments.NewClient("")
	if upstream != nil {
		ts := httptest.NewServer(upstream)
		t.Cleanup(ts.Close)
		synth.BaseURL = ts.URL
		pipeline.BaseURL = ts.URL
	}
	return newExecutor(&cfg, validator, synth, pipeline)
}

func blueprintArgs(t *testing.T) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal([]byte(testBlueprintJSON), &doc); err != nil {
		t.Fatalf("decode blueprint fixture: %v", err)
	}
	return map[string]any{"blueprint": doc}
}

func TestSynthesizePreviewFromBlueprintLyrics(t *testing.T) {
	var gotText string
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotText = payload.Text
		_, _ = w.Write([]byte("audio"))
	})

	result, toolErr := e.handleSynthesizePreview(context.Background(), blueprintArgs(t))
	if toolErr != nil {
		t.Fatalf("tool error: %+v", toolErr)
	}
	if gotText != "Neon lights" {
		t.Errorf("text = %q, want blueprint lyrics", gotText)
	}
	structured := result.StructuredContent.(map[string]any)
	if structured["voice_id"] != "voice-1" {
		t.Errorf("voice_id = %v", structured["voice_id"])
	}
	if _, err := os.Stat(structured["output_path"].(string)); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestSynthesizePreviewExplicitTextWins(t *testing.T) {
	var gotText string
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotText = payload.Text
		_, _ = w.Write([]byte("audio"))
	})

	args := blueprintArgs(t)
	args["text"] = "say this instead"
	if _, toolErr := e.handleSynthesizePreview(context.Background(), args); toolErr != nil {
		t.Fatalf("tool error: %+v", toolErr)
	}
	if gotText != "say this instead" {
		t.Errorf("text = %q", gotText)
	}
}

func TestSynthesizePreviewRequiresText(t *testing.T) {
	e := newTestExecutor(t, nil)
	_, toolErr := e.handleSynthesizePreview(context.Background(), map[string]any{})
	if toolErr == nil || toolErr.Code != "MISSING_INPUT" {
		t.Fatalf("toolErr = %+v, want MISSING_INPUT", toolErr)
	}
}

func TestSynthesizePreviewRejectsOutOfRangeKnob(t *testing.T) {
	e := newTestExecutor(t, nil)
	args := blueprintArgs(t)
	args["stability"] = 1.5
	_, toolErr := e.handleSynthesizePreview(context.Background(), args)
	if toolErr == nil || toolErr.Code != "INVALID_RANGE" {
		t.Fatalf("toolErr = %+v, want INVALID_RANGE", toolErr)
	}
}

func TestSynthesizePreviewRejectsUnknownArgument(t *testing.T) {
	e := newTestExecutor(t, nil)
	args := blueprintArgs(t)
	args["volume"] = 11
	_, toolErr := e.handleSynthesizePreview(context.Background(), args)
	if toolErr == nil || toolErr.Code != "INVALID_FIELD" {
		t.Fatalf("toolErr = %+v, want INVALID_FIELD", toolErr)
	}
}

func TestCreateSongSuccess(t *testing.T) {
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("song"))
	})

	result, toolErr := e.handleCreateSong(context.Background(), blueprintArgs(t))
	if toolErr != nil {
		t.Fatalf("tool error: %+v", toolErr)
	}
	structured := result.StructuredContent.(map[string]any)
	if structured["original_prompt_rejected"] != false {
		t.Errorf("original_prompt_rejected = %v", structured["original_prompt_rejected"])
	}
	if structured["music_length_ms"].(int) < blueprint.MinSongLengthMS {
		t.Errorf("music_length_ms = %v", structured["music_length_ms"])
	}
}

func TestCreateSongRequiresBlueprint(t *testing.T) {
	e := newTestExecutor(t, nil)
	_, toolErr := e.handleCreateSong(context.Background(), map[string]any{})
	if toolErr == nil || toolErr.Code != "MISSING_INPUT" {
		t.Fatalf("toolErr = %+v, want MISSING_INPUT", toolErr)
	}
}

func TestCreateSongInvalidBlueprintShortCircuits(t *testing.T) {
	var calls int
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte("song"))
	})

	args := blueprintArgs(t)
	bp := args["blueprint"].(map[string]any)
	bp["tempo_bpm"] = 9000
	_, toolErr := e.handleCreateSong(context.Background(), args)
	if toolErr == nil || toolErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("toolErr = %+v, want VALIDATION_FAILED", toolErr)
	}
	if calls != 0 {
		t.Errorf("upstream reached %d time(s) despite invalid blueprint", calls)
	}
}

func TestCreateSongReportsDoubleRejection(t *testing.T) {
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": {"status": "prompt_rejected", "data": {"prompt_suggestion": "something tamer"}}}`))
	})

	_, toolErr := e.handleCreateSong(context.Background(), blueprintArgs(t))
	if toolErr == nil || toolErr.Code != "PROMPT_REJECTED" {
		t.Fatalf("toolErr = %+v, want PROMPT_REJECTED", toolErr)
	}
	if toolErr.Detail["original_prompt_rejected"] != true {
		t.Errorf("detail = %v", toolErr.Detail)
	}
	if toolErr.Detail["suggested_prompt"] != "something tamer" {
		t.Errorf("suggested_prompt = %v", toolErr.Detail["suggested_prompt"])
	}
}

func TestCreateSongStringBlueprintAccepted(t *testing.T) {
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("song"))
	})

	_, toolErr := e.handleCreateSong(context.Background(), map[string]any{"blueprint": testBlueprintJSON})
	if toolErr != nil {
		t.Fatalf("tool error: %+v", toolErr)
	}
}

func TestCreateMomentEndToEnd(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/create-moment":
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-1"})
		case "/v1/status/job-1":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":              "job-1",
				"status":          "COMPLETED",
				"final_audio_url": "https://cdn.example/final.mp3",
			})
		default:
			http.NotFound(w, r)
		}
	})

	result, toolErr := e.handleCreateMoment(context.Background(), map[string]any{"audio_path": audioPath})
	if toolErr != nil {
		t.Fatalf("tool error: %+v", toolErr)
	}
	structured := result.StructuredContent.(map[string]any)
	if structured["completed"] != true || structured["timed_out"] != false {
		t.Fatalf("structured = %v", structured)
	}
	if structured["final_audio_url"] != "https://cdn.example/final.mp3" {
		t.Errorf("final_audio_url = %v", structured["final_audio_url"])
	}
}

func TestCreateMomentRequiresExactlyOneSource(t *testing.T) {
	e := newTestExecutor(t, nil)

	_, toolErr := e.handleCreateMoment(context.Background(), map[string]any{})
	if toolErr == nil || toolErr.Code != "MISSING_INPUT" {
		t.Fatalf("neither source: %+v", toolErr)
	}

	_, toolErr = e.handleCreateMoment(context.Background(), map[string]any{
		"audio_url":  "https://example.com/a.mp3",
		"audio_path": "/tmp/a.mp3",
	})
	if toolErr == nil || toolErr.Code != "INVALID_FIELD" {
		t.Fatalf("both sources: %+v", toolErr)
	}
}

func TestCreateMomentValidatesBlueprintJSONFirst(t *testing.T) {
	var calls int
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	_, toolErr := e.handleCreateMoment(context.Background(), map[string]any{
		"audio_path":     "/nonexistent.mp3",
		"blueprint_json": `{"id": "only-an-id"}`,
	})
	if toolErr == nil || toolErr.Code != "VALIDATION_FAILED" {
		t.Fatalf("toolErr = %+v, want VALIDATION_FAILED", toolErr)
	}
	if calls != 0 {
		t.Errorf("upstream reached despite invalid blueprint_json")
	}
}

func TestCreateMomentMissingFile(t *testing.T) {
	e := newTestExecutor(t, nil)
	_, toolErr := e.handleCreateMoment(context.Background(), map[string]any{
		"audio_path": filepath.Join(t.TempDir(), "missing.mp3"),
	})
	if toolErr == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCreateMomentFetchesAudioURL(t *testing.T) {
	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("wav"))
	}))
	defer audio.Close()

	var gotFilename string
	e := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/create-moment":
			_ = r.ParseMultipartForm(1 << 20)
			_, header, err := r.FormFile("file")
			if err == nil {
				gotFilename = header.Filename
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "job-2"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2", "status": "COMPLETED"})
		}
	})

	result, toolErr := e.handleCreateMoment(context.Background(), map[string]any{
		"audio_url": audio.URL + "/source/clip.wav",
	})
	if toolErr != nil {
		t.Fatalf("tool error: %+v", toolErr)
	}
	if gotFilename != "clip.wav" {
		t.Errorf("derived filename = %q", gotFilename)
	}
	structured := result.StructuredContent.(map[string]any)
	if structured["job_id"] != "job-2" {
		t.Errorf("job_id = %v", structured["job_id"])
	}
}
