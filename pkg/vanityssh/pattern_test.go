package vanityssh

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		raw     string
		kind    PatternKind
		source  string
		wantErr bool
	}{
		{raw: "abc", kind: SuffixPattern, source: "abc"},
		{raw: "/^AAAA/", kind: RegexPattern, source: "^AAAA"},
		{raw: "/", kind: SuffixPattern, source: "/"},
		{raw: "//", kind: RegexPattern, source: ""},
		{raw: "a/b", kind: SuffixPattern, source: "a/b"},
		{raw: "/[/", wantErr: true},
		{raw: "/(unclosed/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := CompilePattern(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPatternSyntax) {
					t.Fatalf("Expected ErrInvalidPatternSyntax, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.raw) {
					t.Errorf("Error should name the pattern: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p.Kind() != tt.kind || p.Source() != tt.source {
				t.Errorf("Got %s %q, want %s %q", p.Kind(), p.Source(), tt.kind, tt.source)
			}
		})
	}
}

func TestCompilePatterns_DropsDuplicatesKeepingOrder(t *testing.T) {
	patterns, err := CompilePatterns([]string{"yee", "/yee/", "abc", "yee", "/yee/"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []string{"Suffix: yee", "Regex: yee", "Suffix: abc"}
	if len(patterns) != len(want) {
		t.Fatalf("Expected %d patterns, got %d", len(want), len(patterns))
	}
	for i, p := range patterns {
		if p.String() != want[i] {
			t.Errorf("pattern %d = %s, want %s", i, p, want[i])
		}
	}
}

func TestCompilePatterns_StopsAtFirstError(t *testing.T) {
	if _, err := CompilePatterns([]string{"ok", "/[/"}); !errors.Is(err, ErrInvalidPatternSyntax) {
		t.Fatalf("Expected ErrInvalidPatternSyntax, got %v", err)
	}
}

func TestPatternEquality(t *testing.T) {
	re1, _ := Regex("ab+")
	re2, _ := Regex("ab+")
	if !re1.Equal(re2) || re1.Key() != re2.Key() {
		t.Error("Regexes with the same source should be equal")
	}
	reA, _ := Regex("a")
	if Suffix("a").Equal(reA) {
		t.Error("Suffix and Regex with the same text must differ")
	}
	if Suffix("a").Key() == reA.Key() {
		t.Error("Suffix and Regex with the same text must have different keys")
	}
}

func TestSuffixProbability(t *testing.T) {
	for l := 0; l <= 8; l++ {
		p := Suffix(strings.Repeat("a", l))
		prob, ok := p.Probability()
		if !ok {
			t.Fatalf("len %d: suffix should have a probability", l)
		}
		if want := math.Pow(64, -float64(l)); prob != want {
			t.Errorf("len %d: probability %g, want %g", l, prob, want)
		}
	}
}

func TestEstimateTimeMonotoneInRate(t *testing.T) {
	p := Suffix("abcd")
	prev := math.Inf(1)
	for _, rate := range []float64{1, 10, 1_000, 123_456, 1e6, 1e9} {
		est, ok := p.EstimateTime(rate)
		if !ok {
			t.Fatalf("rate %g: expected an estimate", rate)
		}
		secs, err := parseHumanDuration(est)
		if err != nil {
			t.Fatalf("rate %g: %v", rate, err)
		}
		if secs > prev {
			t.Errorf("rate %g: estimate %q grew from %g s to %g s", rate, est, prev, secs)
		}
		prev = secs
	}
}

func TestEstimateTimeInfinite(t *testing.T) {
	p := Suffix("abcd")
	for _, rate := range []float64{0, -5} {
		if est, ok := p.EstimateTime(rate); !ok || est != "infinite" {
			t.Errorf("rate %g: got %q, %v; want infinite", rate, est, ok)
		}
	}

	// 64^12 attempts at one key per 1000 s is far beyond 2^64 s.
	long := Suffix(strings.Repeat("A", 12))
	if est, ok := long.EstimateTime(0.001); !ok || est != "infinite" {
		t.Errorf("Got %q, want infinite", est)
	}
}

func TestRegexHasNoEstimate(t *testing.T) {
	p, err := Regex("^AAAA")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := p.Probability(); ok {
		t.Error("Regex must not report a probability")
	}
	if _, ok := p.ExpectedAttempts(); ok {
		t.Error("Regex must not report expected attempts")
	}
	if est, ok := p.EstimateTime(1e6); ok || est != "" {
		t.Errorf("Regex must not report an estimate, got %q", est)
	}
	if got := formatPatternStats(p, 1e6); got != "Pattern '^AAAA': regex pattern (no estimate)" {
		t.Errorf("Unexpected stats line: %q", got)
	}
}

func TestSuffixMatchesTokenEnd(t *testing.T) {
	fx, err := loadSeedFixture()
	if err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}
	pairs, err := fx.keyPairs()
	if err != nil {
		t.Fatalf("Failed to generate batch: %v", err)
	}

	for i, kp := range pairs {
		token := kp.EncodedKey()
		tail := token[len(token)-2:]
		if !Suffix(tail).Matches(kp) {
			t.Errorf("key %d: Suffix(%q) should match %s", i, tail, token)
		}

		nearMiss := tail[:1] + string(otherChar(tail[1]))
		if Suffix(nearMiss).Matches(kp) {
			t.Errorf("key %d: near miss Suffix(%q) must not match %s", i, nearMiss, token)
		}

		// The algorithm prefix is never part of the match target.
		if Suffix("ssh-ed25519").Matches(kp) {
			t.Errorf("key %d: algorithm name must not be matched", i)
		}
	}

	if !Suffix(fx.Pattern).Matches(pairs[fx.MatchIndex]) {
		t.Errorf("Fixture key %d should match %q", fx.MatchIndex, fx.Pattern)
	}
}

func otherChar(c byte) byte {
	if c == 'A' {
		return 'B'
	}
	return 'A'
}

func TestRegexSearchesWithinToken(t *testing.T) {
	kp := GenerateBatch(1)[0]
	anchored, _ := Regex("^AAAAC3NzaC1lZDI1NTE5")
	if !anchored.Matches(kp) {
		t.Error("Token should start with the ed25519 wire prefix")
	}
	line, _ := Regex("^ssh-ed25519")
	if line.Matches(kp) {
		t.Error("Regex must be applied to the token, not the whole line")
	}
}

func TestFirstMatchUsesPatternOrder(t *testing.T) {
	fx, err := loadSeedFixture()
	if err != nil {
		t.Fatalf("Failed to load fixture: %v", err)
	}
	pairs, err := fx.keyPairs()
	if err != nil {
		t.Fatalf("Failed to generate batch: %v", err)
	}
	kp := pairs[fx.MatchIndex]

	p, ok := FirstMatch([]Pattern{Suffix("ee"), Suffix("yee")}, kp)
	if !ok || !p.Equal(Suffix("ee")) {
		t.Errorf("Expected Suffix: ee, got %s (%v)", p, ok)
	}
	p, ok = FirstMatch([]Pattern{Suffix("yee"), Suffix("ee")}, kp)
	if !ok || !p.Equal(Suffix("yee")) {
		t.Errorf("Expected Suffix: yee, got %s (%v)", p, ok)
	}
	if _, ok := FirstMatch([]Pattern{Suffix("xee")}, kp); ok {
		t.Error("Expected no match")
	}
}

func TestPatternFilename(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	longRe, _ := Regex("abcdefghijklmnopqrstuvwxyz")
	symbolRe, _ := Regex("^A.*b$")

	tests := []struct {
		name string
		p    Pattern
		want string
	}{
		{"suffix", Suffix("yee"), "yee_1700000000"},
		{"suffix with slash", Suffix("a/b"), "a_b_1700000000"},
		{"regex symbols", symbolRe, "regex__A__b__1700000000"},
		{"regex truncated", longRe, "regex_abcdefghijklmnopqrst_1700000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Filename(now); got != tt.want {
				t.Errorf("Filename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{1, "1s"},
		{1.5, "1s 500ms"},
		{0.25, "250ms"},
		{0.8192, "819ms 200us"},
		{0.0000042, "4us 200ns"},
		{3e-9, "3ns"},
		{1.9999999999, "2s"},
		{61, "1m 1s"},
		{secondsPerDay + secondsPerHour, "1day 1h"},
		{2*secondsPerDay + 5, "2days 5s"},
		{2*secondsPerYear + secondsPerMonth, "2years 1month"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.want {
			t.Errorf("formatDuration(%g) = %q, want %q", tt.seconds, got, tt.want)
		}
	}

	// Sub-millisecond estimates keep their units instead of collapsing to 0s.
	if est, _ := Suffix("yee").EstimateTime(1e9); est != "262us 144ns" {
		t.Errorf("EstimateTime at 1e9 keys/sec = %q, want 262us 144ns", est)
	}

	if got := shortDuration("1year 2months 3days 4h"); got != "1year 2months" {
		t.Errorf("shortDuration kept %q", got)
	}
	if got := shortDuration("5s"); got != "5s" {
		t.Errorf("shortDuration kept %q", got)
	}
}
