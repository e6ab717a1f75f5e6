// Package vanityssh searches for Ed25519 SSH keys whose OpenSSH public key
// token matches a cosmetic pattern, such as a suffix or a regular expression.
//
// Keys are produced in batches so that the public points of a batch are
// compressed with a single field inversion. A fixed pool of workers tests
// every key against the patterns in the order they were supplied and reports
// to one aggregator over a channel. The aggregator owns all counters and hits.
// It also drives the optional persistence and notification collaborators.
//
// Basic Usage:
//
//	patterns, err := vanityssh.CompilePatterns([]string{"yee", "/^AAAAC3Nz.*42$/"})
//	if err != nil {
//		return err
//	}
//	result, err := vanityssh.NewDispatcher().
//		WithStopOnMatch(true).
//		Search(ctx, runtime.NumCPU(), patterns)
//
// Persisting hits and sending notifications:
//
//	d := vanityssh.NewDispatcher().
//		WithSaver(keystore.New("out")).
//		WithNotifier(notify.NewClient(), "my-ntfy-topic")
//
// Patterns are matched against the base64 key token only, never against the
// "ssh-ed25519" prefix or a comment. A suffix of length L matches a random key
// with probability 64^-L; regular expressions have no estimate.
//
// Stopping is cooperative: workers poll a shared StopSignal between batches,
// so shutdown takes up to one batch generation time.
package vanityssh
