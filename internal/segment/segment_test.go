package segment

import "testing"

func TestFeedSplitsOnHardTerminatorCJK(t *testing.T) {
	s := New(2, 40)
	out := s.Feed("你好。世界！")
	if len(out) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %v", len(out), out)
	}
	if out[0] != "你好。" {
		t.Errorf("unexpected first sentence: %q", out[0])
	}
	if out[1] != "世界！" {
		t.Errorf("unexpected second sentence: %q", out[1])
	}
}

func TestFeedHoldsBackUntilMinLen(t *testing.T) {
	s := New(5, 40)
	out := s.Feed("Hi. Hello world.")
	if len(out) != 1 {
		t.Fatalf("expected 1 sentence, got %d: %v", len(out), out)
	}
	if out[0] != "Hi. Hello world." {
		t.Errorf("unexpected sentence: %q", out[0])
	}
}

func TestFeedForcesBreakAtMaxLen(t *testing.T) {
	s := New(3, 10)
	out := s.Feed("abcdefghij,klmno,pqrst")
	if len(out) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %v", len(out), out)
	}
	if out[0] != "abcdefghij," {
		t.Errorf("unexpected first sentence: %q", out[0])
	}
	if out[1] != "klmno," {
		t.Errorf("unexpected second sentence: %q", out[1])
	}
	rest := s.Flush()
	if rest != "pqrst" {
		t.Errorf("unexpected flush remainder: %q", rest)
	}
}

func TestFeedAndFlushRoundTrip(t *testing.T) {
	s := New(5, 100)
	var got string
	for _, sent := range s.Feed("The quick brown fox jumps over the lazy dog") {
		got += sent
	}
	got += s.Flush()
	want := "The quick brown fox jumps over the lazy dog"
	if got != want {
		t.Errorf("round trip mismatch: got %q want %q", got, want)
	}
}

func TestDecimalGuardSuppressesPeriod(t *testing.T) {
	s := New(3, 40)
	out := s.Feed("pi is 3.14159 and that's it")
	if len(out) != 0 {
		t.Fatalf("expected no premature split on 3.14, got %v", out)
	}
	rest := s.Flush()
	if rest != "pi is 3.14159 and that's it" {
		t.Errorf("unexpected flush: %q", rest)
	}
}

func TestAcronymGuardSuppressesPeriod(t *testing.T) {
	s := New(3, 60)
	out := s.Feed("bring snacks, e.g. chips, for the trip.")
	if len(out) != 1 {
		t.Fatalf("expected the e.g. periods to be guard-suppressed and only the final period to split, got %v", out)
	}
	if out[0] != "bring snacks, e.g. chips, for the trip." {
		t.Errorf("unexpected sentence: %q", out[0])
	}
}

func TestFeedAcrossMultipleChunks(t *testing.T) {
	s := New(5, 40)
	var out []string
	out = append(out, s.Feed("Hello wor")...)
	out = append(out, s.Feed("ld, this is")...)
	out = append(out, s.Feed(" a test.")...)
	if len(out) != 1 {
		t.Fatalf("expected 1 sentence, got %d: %v", len(out), out)
	}
	if out[0] != "Hello world, this is a test." {
		t.Errorf("unexpected sentence: %q", out[0])
	}
}

func TestEmptyEmissionsSuppressed(t *testing.T) {
	s := New(1, 40)
	out := s.Feed("...")
	for _, sent := range out {
		if sent == "" {
			t.Errorf("empty sentence emitted from %q", out)
		}
	}
}

func TestFlushOnEmptyBufferReturnsEmptyString(t *testing.T) {
	s := New(5, 40)
	if got := s.Flush(); got != "" {
		t.Errorf("expected empty flush on fresh segmenter, got %q", got)
	}
}
