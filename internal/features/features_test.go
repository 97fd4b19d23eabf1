package features

import "testing"

func TestResolve(t *testing.T) {
	set := Resolve(map[string]bool{
		TranscriptArchive: false,
		" Verbose_Embeds ": true,
		"no_such_flag":     true,
	})
	if !set.Enabled(EngineAutocomplete) {
		t.Fatalf("engine_autocomplete should keep its default")
	}
	if set.Enabled(TranscriptArchive) {
		t.Fatalf("transcript_archive override not applied")
	}
	if !set.Enabled(VerboseEmbeds) {
		t.Fatalf("override keys should be normalized")
	}
	if set.Enabled("no_such_flag") {
		t.Fatalf("unknown keys must stay disabled")
	}
}

func TestZeroSetUsesDefaults(t *testing.T) {
	var set Set
	for _, spec := range Specs {
		if set.Enabled(spec.Key) != spec.DefaultEnabled {
			t.Fatalf("%s: Enabled = %v, want default %v", spec.Key, set.Enabled(spec.Key), spec.DefaultEnabled)
		}
	}
}

func TestUnknown(t *testing.T) {
	got := Unknown(map[string]bool{"b": true, "a": false, EngineAutocomplete: true})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Unknown = %v", got)
	}
	if StageFor("a") != StageExperimental || StageFor(TranscriptArchive) != StageBeta {
		t.Fatalf("unexpected stages")
	}
}
