package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2023lic14/momentmcp/internal/model"
)

func newTestLedger(t *testing.T) *ArtifactLedger {
	t.Helper()
	ledger := NewArtifactLedger(filepath.Join(t.TempDir(), "artifacts.sqlite"))
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger
}

func TestRecordAndRecent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	base := time.Now().Unix()
	records := []model.Artifact{
		{Tool: "synthesize_preview", Path: "/out/a.mp3", SizeBytes: 10, MimeType: "audio/mpeg", ModelID: "eleven_multilingual_v2", Prompt: "hello", CreatedUnix: base},
		{Tool: "create_song", Path: "/out/b.mp3", SizeBytes: 20, MimeType: "audio/mpeg", ModelID: "music_v1", Prompt: "synthwave song", CreatedUnix: base + 1},
		{Tool: "create_song", Path: "/out/c.mp3", SizeBytes: 30, MimeType: "audio/mpeg", ModelID: "music_v1", Prompt: "second song", CreatedUnix: base + 2},
	}
	for _, r := range records {
		if err := ledger.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	recent, err := ledger.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Path != "/out/c.mp3" || recent[1].Path != "/out/b.mp3" {
		t.Errorf("order = %q, %q, want newest first", recent[0].Path, recent[1].Path)
	}
	if recent[0].Tool != "create_song" || recent[0].SizeBytes != 30 {
		t.Errorf("record = %+v", recent[0])
	}
}

func TestRecordTruncatesLongPrompt(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	long := strings.Repeat("x", 5000)
	if err := ledger.Record(ctx, model.Artifact{Tool: "create_song", Path: "/out/long.mp3", Prompt: long, CreatedUnix: time.Now().Unix()}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	recent, err := ledger.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent[0].Prompt) > 2000 {
		t.Errorf("prompt length = %d, want at most 2000", len(recent[0].Prompt))
	}
}

func TestRecentOnEmptyLedger(t *testing.T) {
	ledger := newTestLedger(t)
	recent, err := ledger.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("len = %d, want 0", len(recent))
	}
}

func TestCloseBeforeUse(t *testing.T) {
	ledger := NewArtifactLedger(filepath.Join(t.TempDir(), "unused.sqlite"))
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
