package vanityssh

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mahdiidarabi/vanity-ssh/internal/pkg/json"
	"golang.org/x/crypto/ssh"
)

// fixturesDir returns the path to the fixtures directory (works regardless of test cwd).
func fixturesDir() string {
	_, f, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(f), "..", "..", "fixtures")
}

type seedFixture struct {
	Pattern    string `json:"pattern"`
	MatchIndex int    `json:"match_index"`
	Keys       []struct {
		Seed      string `json:"seed"`
		PublicKey string `json:"public_key"`
		Token     string `json:"token"`
	} `json:"keys"`
}

// loadSeedFixture reads fixtures/test_vanity_seeds.json: consecutive seeds of
// which exactly one (MatchIndex) yields a token ending in Pattern.
func loadSeedFixture() (*seedFixture, error) {
	data, err := os.ReadFile(filepath.Join(fixturesDir(), "test_vanity_seeds.json"))
	if err != nil {
		return nil, err
	}
	var fx seedFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, err
	}
	return &fx, nil
}

// seedStream concatenates the fixture seeds into one random stream.
func (fx *seedFixture) seedStream() ([]byte, error) {
	var buf bytes.Buffer
	for i, k := range fx.Keys {
		seed, err := hex.DecodeString(k.Seed)
		if err != nil {
			return nil, fmt.Errorf("seed %d: %w", i, err)
		}
		buf.Write(seed)
	}
	return buf.Bytes(), nil
}

// keyPairs derives the fixture keypairs through the batched path.
func (fx *seedFixture) keyPairs() ([]KeyPair, error) {
	stream, err := fx.seedStream()
	if err != nil {
		return nil, err
	}
	return GenerateBatchFrom(bytes.NewReader(stream), len(fx.Keys))
}

// referenceToken encodes a seed's public key with crypto/ed25519 and x/crypto/ssh only.
func referenceToken(seed []byte) (string, error) {
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := ssh.NewPublicKey(priv.Public())
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(ssh.MarshalAuthorizedKey(pub)))
	return fields[1], nil
}

// cyclingGenerator hands out keys from pairs in order, wrapping around.
func cyclingGenerator(pairs []KeyPair) BatchGenerator {
	var mu sync.Mutex
	next := 0
	return func(n int) []KeyPair {
		mu.Lock()
		defer mu.Unlock()
		out := make([]KeyPair, n)
		for i := range out {
			out[i] = pairs[next]
			next = (next + 1) % len(pairs)
		}
		return out
	}
}

// fixedGenerator returns the same batch on every call, regardless of n.
func fixedGenerator(pairs []KeyPair) BatchGenerator {
	return func(int) []KeyPair { return pairs }
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type savedKey struct {
	kp   KeyPair
	name string
}

type fakeSaver struct {
	mu    sync.Mutex
	dir   string
	err   error
	saved []savedKey
}

func (s *fakeSaver) Save(kp KeyPair, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, savedKey{kp: kp, name: name})
	return filepath.Join(s.dir, name), nil
}

type notification struct {
	endpoint string
	message  string
	ctxErr   error
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, endpoint, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{endpoint: endpoint, message: message, ctxErr: ctx.Err()})
	return n.err
}

func (n *fakeNotifier) messages() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fakeDisplay struct {
	mu       sync.Mutex
	updates  []string
	lines    []string
	finished bool
}

func (d *fakeDisplay) Update(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, message)
}

func (d *fakeDisplay) Println(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, line)
}

func (d *fakeDisplay) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = true
}

// parseHumanDuration inverts formatDuration to seconds.
func parseHumanDuration(s string) (float64, error) {
	units := []struct {
		suffix  string
		seconds float64
	}{
		{"years", secondsPerYear}, {"year", secondsPerYear},
		{"months", secondsPerMonth}, {"month", secondsPerMonth},
		{"days", secondsPerDay}, {"day", secondsPerDay},
		{"ms", 1e-3}, {"us", 1e-6}, {"ns", 1e-9},
		{"h", secondsPerHour}, {"m", secondsPerMinute}, {"s", 1},
	}
	var total float64
	for _, field := range strings.Fields(s) {
		matched := false
		for _, u := range units {
			if !strings.HasSuffix(field, u.suffix) {
				continue
			}
			n, err := strconv.ParseUint(strings.TrimSuffix(field, u.suffix), 10, 64)
			if err != nil {
				continue
			}
			total += float64(n) * u.seconds
			matched = true
			break
		}
		if !matched {
			return 0, fmt.Errorf("unknown duration field %q", field)
		}
	}
	return total, nil
}
