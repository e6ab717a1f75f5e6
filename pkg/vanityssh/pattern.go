package vanityssh

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// ErrInvalidPatternSyntax is returned when a /.../ delimited pattern is not a valid regular expression.
var ErrInvalidPatternSyntax = errors.New("invalid pattern syntax")

// alphabetSize is the number of symbols a base64 key token is drawn from.
const alphabetSize = 64

// PatternKind tells suffix patterns from regular expressions.
type PatternKind int

const (
	SuffixPattern PatternKind = iota
	RegexPattern
)

func (k PatternKind) String() string {
	switch k {
	case SuffixPattern:
		return "Suffix"
	case RegexPattern:
		return "Regex"
	default:
		return fmt.Sprintf("PatternKind(%d)", int(k))
	}
}

// Pattern is a match predicate over the base64 token of an OpenSSH public key.
// Patterns are immutable and safe to share between goroutines.
type Pattern struct {
	kind PatternKind
	src  string
	re   *regexp.Regexp
}

// Suffix returns a pattern matching tokens that end with s.
func Suffix(s string) Pattern {
	return Pattern{kind: SuffixPattern, src: s}
}

// Regex compiles expr into a pattern matching tokens that contain a match for it.
func Regex(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: /%s/: %v", ErrInvalidPatternSyntax, expr, err)
	}
	return Pattern{kind: RegexPattern, src: expr, re: re}, nil
}

// CompilePattern parses a raw user pattern. Strings wrapped in slashes
// ("/^AAAA/") are regular expressions; anything else is a literal suffix.
func CompilePattern(raw string) (Pattern, error) {
	if len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		return Regex(raw[1 : len(raw)-1])
	}
	return Suffix(raw), nil
}

// CompilePatterns compiles raw patterns in order. Later duplicates of an
// already seen pattern are dropped.
func CompilePatterns(raws []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, raw := range raws {
		p, err := CompilePattern(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.Key()]; dup {
			continue
		}
		seen[p.Key()] = struct{}{}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Kind reports whether p is a suffix or a regex.
func (p Pattern) Kind() PatternKind { return p.kind }

// Source returns the suffix text or the regex source without delimiters.
func (p Pattern) Source() string { return p.src }

// Key identifies a pattern by kind and source text. Two patterns are equal
// exactly when their keys are equal; compiled regexes are never compared.
func (p Pattern) Key() string {
	return p.kind.String() + ":" + p.src
}

// Equal reports whether p and other describe the same predicate.
func (p Pattern) Equal(other Pattern) bool {
	return p.kind == other.kind && p.src == other.src
}

func (p Pattern) String() string {
	return p.kind.String() + ": " + p.src
}

// Filename derives the base name of the key files saved for a hit at now.
func (p Pattern) Filename(now time.Time) string {
	ts := now.Unix()
	if p.kind == RegexPattern {
		return fmt.Sprintf("regex_%s_%d", sanitizeName(p.src, 20), ts)
	}
	return fmt.Sprintf("%s_%d", strings.ReplaceAll(p.src, "/", "_"), ts)
}

func sanitizeName(s string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == limit {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

// Probability is the chance that one random key matches p, (1/64)^len for
// suffixes. Regex patterns have no closed form and report ok == false.
func (p Pattern) Probability() (prob float64, ok bool) {
	if p.kind != SuffixPattern {
		return 0, false
	}
	return math.Pow(alphabetSize, -float64(len(p.src))), true
}

// ExpectedAttempts is 1/Probability.
func (p Pattern) ExpectedAttempts() (float64, bool) {
	prob, ok := p.Probability()
	if !ok {
		return 0, false
	}
	return 1 / prob, true
}

// EstimateTime renders the expected time to a match at rate keys/sec.
// Estimates that do not fit in 2^64 seconds, including a zero rate, read "infinite".
func (p Pattern) EstimateTime(rate float64) (string, bool) {
	expected, ok := p.ExpectedAttempts()
	if !ok {
		return "", false
	}
	if rate <= 0 {
		return "infinite", true
	}
	seconds := expected / rate
	if math.IsNaN(seconds) || seconds >= math.MaxUint64 {
		return "infinite", true
	}
	return formatDuration(seconds), true
}

// Matches reports whether the encoded key token of kp satisfies p.
func (p Pattern) Matches(kp KeyPair) bool {
	return p.matchToken(kp.EncodedKey())
}

func (p Pattern) matchToken(token string) bool {
	switch p.kind {
	case SuffixPattern:
		return strings.HasSuffix(token, p.src)
	case RegexPattern:
		return p.re != nil && p.re.MatchString(token)
	default:
		return false
	}
}

// FirstMatch tests kp against patterns in order and returns the first that matches.
func FirstMatch(patterns []Pattern, kp KeyPair) (Pattern, bool) {
	token := kp.EncodedKey()
	for _, p := range patterns {
		if p.matchToken(token) {
			return p, true
		}
	}
	return Pattern{}, false
}

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerDay    = 86400
	secondsPerMonth  = 2_630_016  // 30.44 days
	secondsPerYear   = 31_557_600 // 365.25 days
)

// formatDuration renders seconds as "1year 2months 3days 4h 5m 6s 7ms 8us 9ns",
// omitting zero units.
func formatDuration(seconds float64) string {
	whole := uint64(seconds)
	nanos := uint64(math.Round((seconds - float64(whole)) * 1e9))
	if nanos >= 1e9 {
		whole++
		nanos -= 1e9
	}

	units := []struct {
		size     uint64
		singular string
		plural   string
	}{
		{secondsPerYear, "year", "years"},
		{secondsPerMonth, "month", "months"},
		{secondsPerDay, "day", "days"},
		{secondsPerHour, "h", "h"},
		{secondsPerMinute, "m", "m"},
		{1, "s", "s"},
	}

	parts := make([]string, 0, len(units)+3)
	rest := whole
	for _, u := range units {
		n := rest / u.size
		rest %= u.size
		if n == 0 {
			continue
		}
		name := u.plural
		if n == 1 {
			name = u.singular
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, name))
	}
	for _, sub := range []struct {
		n    uint64
		unit string
	}{
		{nanos / 1e6, "ms"},
		{nanos / 1e3 % 1e3, "us"},
		{nanos % 1e3, "ns"},
	} {
		if sub.n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", sub.n, sub.unit))
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}

// shortDuration keeps the first two units of a formatted duration.
func shortDuration(s string) string {
	fields := strings.Fields(s)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}
