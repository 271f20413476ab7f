package blueprint

import (
	"strings"
	"testing"

	"github.com/2023lic14/momentmcp/internal/model"
)

func sampleBlueprint() *model.Blueprint {
	energyLow := 0.3
	energyHigh := 0.9
	return &model.Blueprint{
		ID:            "bp-1",
		Style:         "synthwave",
		TempoBPM:      120,
		Key:           "Am",
		TimeSignature: "4/4",
		Sections: []model.Section{
			{Name: "intro", Bars: 8, Energy: &energyLow, Prompt: "soft pads"},
			{Name: "chorus", Bars: 24, Energy: &energyHigh},
		},
		Lyrics: "Neon lights across the bay",
		Voice:  model.VoiceSettings{VoiceID: "voice-1"},
	}
}

func TestEstimateDurationFromBars(t *testing.T) {
	// 32 bars at 120 BPM in 4/4 is exactly 64 seconds.
	bp := sampleBlueprint()
	if got := EstimateDurationMS(bp); got != 64000 {
		t.Fatalf("EstimateDurationMS = %d, want 64000", got)
	}
}

func TestEstimateDurationClampsShortAndLong(t *testing.T) {
	bp := sampleBlueprint()
	bp.Sections = []model.Section{{Name: "stinger", Bars: 1}}
	if got := EstimateDurationMS(bp); got != MinSongLengthMS {
		t.Fatalf("short estimate = %d, want %d", got, MinSongLengthMS)
	}

	bp.Sections = []model.Section{{Name: "epic", Bars: 256}, {Name: "more", Bars: 256}}
	if got := EstimateDurationMS(bp); got != MaxSongLengthMS {
		t.Fatalf("long estimate = %d, want %d", got, MaxSongLengthMS)
	}
}

func TestClampSongLength(t *testing.T) {
	cases := []struct{ in, want int }{
		{1000, MinSongLengthMS},
		{10000, 10000},
		{64000, 64000},
		{300000, 300000},
		{500000, MaxSongLengthMS},
	}
	for _, c := range cases {
		if got := ClampSongLength(c.in); got != c.want {
			t.Errorf("ClampSongLength(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestBuildPromptIncludesStructureAndLyrics(t *testing.T) {
	bp := sampleBlueprint()
	prompt := BuildPrompt(bp, false)

	for _, want := range []string{"synthwave", "Am", "120", "4/4", "intro", "8 bars", "chorus", "soft pads", "Neon lights across the bay"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptInstrumentalOmitsLyrics(t *testing.T) {
	bp := sampleBlueprint()
	prompt := BuildPrompt(bp, true)
	if strings.Contains(prompt, "Neon lights") {
		t.Fatalf("instrumental prompt should not carry lyrics:\n%s", prompt)
	}
	if !strings.Contains(strings.ToLower(prompt), "instrumental") {
		t.Fatalf("instrumental prompt should say so:\n%s", prompt)
	}
}

func TestSanitizeStyleStripsAttribution(t *testing.T) {
	cases := []struct{ in, wantAbsent string }{
		{"dream pop inspired by a famous act", "inspired by"},
		{"upbeat funk, In The Style Of somebody", "in the style of"},
	}
	for _, c := range cases {
		got := SanitizeStyle(c.in)
		if strings.Contains(strings.ToLower(got), c.wantAbsent) {
			t.Errorf("SanitizeStyle(%q) = %q still contains %q", c.in, got, c.wantAbsent)
		}
		if strings.TrimSpace(got) == "" {
			t.Errorf("SanitizeStyle(%q) produced empty style", c.in)
		}
	}
}

func TestSanitizeStyleFallsBackWhenEmptied(t *testing.T) {
	got := SanitizeStyle("inspired by someone")
	if strings.TrimSpace(got) == "" {
		t.Fatal("expected a non-empty fallback style")
	}
}

func TestFallbackPromptNeverCarriesAttribution(t *testing.T) {
	bp := sampleBlueprint()
	bp.Style = "city pop in the style of a well known band"
	prompt := BuildFallbackPrompt(bp, false)
	if strings.Contains(strings.ToLower(prompt), "in the style of") {
		t.Fatalf("fallback prompt leaked attribution:\n%s", prompt)
	}
}

func TestIsJSONPayload(t *testing.T) {
	if !IsJSONPayload(`  {"id": "x"}`) {
		t.Error("object payload not detected")
	}
	if !IsJSONPayload(`[1, 2]`) {
		t.Error("array payload not detected")
	}
	if IsJSONPayload("an upbeat pop song") {
		t.Error("plain text misdetected as JSON")
	}
}
