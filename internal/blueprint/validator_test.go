package blueprint

import (
	"strings"
	"testing"
)

const validBlueprintJSON = `{
  "id": "bp-1",
  "style": "synthwave",
  "tempo_bpm": 120,
  "key": "Am",
  "time_signature": "4/4",
  "sections": [
    {"name": "intro", "bars": 8, "energy": 0.3, "prompt": "soft pads"},
    {"name": "chorus", "bars": 24, "energy": 0.9}
  ],
  "lyrics": "Neon lights across the bay",
  "voice": {"voice_id": "voice-1"}
}`

func mustValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := CompileDefault("")
	if err != nil {
		t.Fatalf("CompileDefault: %v", err)
	}
	return v
}

func TestValidateAcceptsWellFormedBlueprint(t *testing.T) {
	v := mustValidator(t)
	ok, findings := v.ValidateJSON([]byte(validBlueprintJSON))
	if !ok {
		t.Fatalf("expected valid, got findings: %v", findings)
	}
	if len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestValidateReportsLocations(t *testing.T) {
	v := mustValidator(t)
	doc := `{
	  "id": "bp-2",
	  "style": "jazz",
	  "tempo_bpm": 500,
	  "key": "H",
	  "sections": [{"name": "a", "bars": 0}],
	  "lyrics": "la",
	  "voice": {"voice_id": "v"}
	}`
	ok, findings := v.ValidateJSON([]byte(doc))
	if ok {
		t.Fatal("expected invalid")
	}

	locations := make(map[string]bool)
	for _, f := range findings {
		if f.Message == "" {
			t.Errorf("finding %q missing message", f.Location)
		}
		locations[f.Location] = true
	}
	for _, want := range []string{"tempo_bpm", "key"} {
		if !locations[want] {
			t.Errorf("missing finding for %q, got %v", want, locations)
		}
	}
	found := false
	for loc := range locations {
		if strings.HasPrefix(loc, "sections.0") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a finding under sections.0, got %v", locations)
	}
}

func TestValidateRejectsUnknownTopLevelField(t *testing.T) {
	v := mustValidator(t)
	doc := strings.Replace(validBlueprintJSON, `"id": "bp-1",`, `"id": "bp-1", "surprise": true,`, 1)
	ok, _ := v.ValidateJSON([]byte(doc))
	if ok {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	v := mustValidator(t)
	ok, findings := v.ValidateJSON([]byte("{not json"))
	if ok {
		t.Fatal("expected malformed JSON to be invalid")
	}
	if len(findings) == 0 {
		t.Fatal("expected at least one finding")
	}
}

func TestCompileRejectsBrokenSchema(t *testing.T) {
	if _, err := Compile([]byte(`{"type": 12}`)); err == nil {
		t.Fatal("expected compile error")
	}
}
