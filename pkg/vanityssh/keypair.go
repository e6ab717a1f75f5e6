package vanityssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"
	"strings"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
	"golang.org/x/crypto/ssh"
)

// BatchSize is the number of keypairs a worker generates and tests per round.
const BatchSize = 100

const (
	// SeedSize is the size of an Ed25519 secret seed.
	SeedSize = ed25519.SeedSize
	// PublicKeySize is the size of a compressed Ed25519 public point.
	PublicKeySize = ed25519.PublicKeySize
)

// KeyPair is an Ed25519 secret seed and the compressed public point derived from it.
type KeyPair struct {
	Seed   [SeedSize]byte
	Public [PublicKeySize]byte
}

// GenerateBatch returns n fresh keypairs drawn from crypto/rand.
// A failing system randomness source is not recoverable and panics.
func GenerateBatch(n int) []KeyPair {
	pairs, err := GenerateBatchFrom(rand.Reader, n)
	if err != nil {
		panic(fmt.Sprintf("vanityssh: secure random source failed: %v", err))
	}
	return pairs
}

// GenerateBatchFrom derives n keypairs from seeds read from r.
//
// All seeds are read first, every public point is computed, and the points are
// then compressed together so that a single field inversion covers the batch.
func GenerateBatchFrom(r io.Reader, n int) ([]KeyPair, error) {
	if n <= 0 {
		return nil, nil
	}

	seeds := make([]byte, n*SeedSize)
	if _, err := io.ReadFull(r, seeds); err != nil {
		return nil, fmt.Errorf("failed to read %d seeds: %w", n, err)
	}

	pairs := make([]KeyPair, n)
	points := make([]*edwards25519.Point, n)
	for i := range pairs {
		copy(pairs[i].Seed[:], seeds[i*SeedSize:(i+1)*SeedSize])
		points[i] = mulBase(expandSeed(pairs[i].Seed))
	}

	for i, enc := range compressBatch(points) {
		pairs[i].Public = enc
	}
	return pairs, nil
}

// KeyPairFromSeed derives a single keypair without batching.
func KeyPairFromSeed(seed [SeedSize]byte) KeyPair {
	return KeyPair{
		Seed:   seed,
		Public: compressPoint(mulBase(expandSeed(seed))),
	}
}

// PrivateKey returns the keypair in crypto/ed25519 form.
func (kp KeyPair) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(kp.Seed[:])
}

// PublicKey returns a copy of the compressed public point.
func (kp KeyPair) PublicKey() ed25519.PublicKey {
	pub := make(ed25519.PublicKey, PublicKeySize)
	copy(pub, kp.Public[:])
	return pub
}

// AuthorizedKey renders the public key as a single authorized_keys line
// ("ssh-ed25519 AAAA...") without a trailing newline.
func (kp KeyPair) AuthorizedKey() string {
	pub, err := ssh.NewPublicKey(kp.PublicKey())
	if err != nil {
		// Only reachable with a wrong key length, which the array type rules out.
		panic(fmt.Sprintf("vanityssh: encode public key: %v", err))
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
}

// EncodedKey returns the base64 token of the authorized_keys line, the part
// patterns are matched against.
func (kp KeyPair) EncodedKey() string {
	return encodedToken(kp.AuthorizedKey())
}

// encodedToken extracts the key token from "<algo> <token> [comment]".
func encodedToken(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func newSeed(r io.Reader) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	_, err := io.ReadFull(r, seed[:])
	return seed, err
}

// expandSeed hashes the seed and clamps the lower half into the signing scalar (RFC 8032).
func expandSeed(seed [SeedSize]byte) *edwards25519.Scalar {
	h := sha512.Sum512(seed[:])
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		panic(err)
	}
	return s
}

func mulBase(s *edwards25519.Scalar) *edwards25519.Point {
	return new(edwards25519.Point).ScalarBaseMult(s)
}

func compressPoint(p *edwards25519.Point) [PublicKeySize]byte {
	var out [PublicKeySize]byte
	copy(out[:], p.Bytes())
	return out
}

// compressBatch encodes every point with one shared inversion (Montgomery's trick).
// The output is identical to calling compressPoint on each point.
func compressBatch(points []*edwards25519.Point) [][PublicKeySize]byte {
	n := len(points)
	out := make([][PublicKeySize]byte, n)
	if n == 0 {
		return out
	}

	xs := make([]*field.Element, n)
	ys := make([]*field.Element, n)
	zs := make([]*field.Element, n)
	prefix := make([]field.Element, n)
	for i, p := range points {
		x, y, z, _ := p.ExtendedCoordinates()
		xs[i], ys[i], zs[i] = x, y, z
		if i == 0 {
			prefix[0].Set(z)
		} else {
			prefix[i].Multiply(&prefix[i-1], z)
		}
	}

	// inv holds 1/(Z_0 * ... * Z_i) at the top of each iteration.
	inv := new(field.Element).Invert(&prefix[n-1])
	var zInv, x, y field.Element
	for i := n - 1; i >= 0; i-- {
		if i > 0 {
			zInv.Multiply(inv, &prefix[i-1])
		} else {
			zInv.Set(inv)
		}
		inv.Multiply(inv, zs[i])

		x.Multiply(xs[i], &zInv)
		y.Multiply(ys[i], &zInv)
		copy(out[i][:], y.Bytes())
		out[i][31] |= byte(x.IsNegative() << 7)
	}
	return out
}
