package fingerprint

import "testing"

func TestComputeIsDeterministic(t *testing.T) {
	a := Compute("tts-1", "alloy", "Hello world.")
	b := Compute("tts-1", "alloy", "Hello world.")
	if a != b {
		t.Fatalf("expected identical fingerprints, got %q and %q", a, b)
	}
}

func TestComputeDiffersByField(t *testing.T) {
	base := Compute("tts-1", "alloy", "Hello world.")
	byModel := Compute("tts-2", "alloy", "Hello world.")
	byVoice := Compute("tts-1", "nova", "Hello world.")
	byText := Compute("tts-1", "alloy", "Goodbye world.")
	if base == byModel || base == byVoice || base == byText {
		t.Fatal("expected fingerprint to change when any field changes")
	}
}

func TestComputeTrimsWhitespace(t *testing.T) {
	a := Compute("tts-1", "alloy", "Hello world.")
	b := Compute("tts-1", "alloy", "  Hello world.  \n")
	if a != b {
		t.Errorf("expected whitespace-insensitive fingerprint, got %q vs %q", a, b)
	}
}

func TestComputeNormalizesUnicode(t *testing.T) {
	// "é" is "e" + a combining acute accent; "é" is the
	// precomposed codepoint. Both render as the same visible "e" with an
	// accent, and NFC normalization should fold them to the same fingerprint.
	decomposed := "cafe\u0301"
	precomposed := "caf\u00e9"
	a := Compute("tts-1", "alloy", precomposed)
	b := Compute("tts-1", "alloy", decomposed)
	if a != b {
		t.Errorf("expected NFC-normalized fingerprints to match, got %q vs %q", a, b)
	}
}

func TestComputeDoesNotConfuseFieldBoundaries(t *testing.T) {
	a := Compute("m", "v", "text")
	b := Compute("m", "vtext", "")
	if a == b {
		t.Error("expected field-separator to prevent cross-field collisions")
	}
}

func TestComputeReturnsHexSHA256Length(t *testing.T) {
	got := Compute("tts-1", "alloy", "hi")
	if len(got) != 64 {
		t.Errorf("expected 64 hex characters, got %d: %q", len(got), got)
	}
}
