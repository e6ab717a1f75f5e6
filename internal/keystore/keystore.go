package keystore

import (
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mahdiidarabi/vanity-ssh/pkg/vanityssh"
	"golang.org/x/crypto/ssh"
)

const (
	dirMode     os.FileMode = 0o700
	privateMode os.FileMode = 0o600
	publicMode  os.FileMode = 0o644

	// maxSuffix bounds the search for a free name when the requested one is taken.
	maxSuffix = 1000
)

// Store writes matched keypairs as OpenSSH key files into one directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created on first save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string { return s.dir }

// Save writes <dir>/<name>.pub (authorized_keys line) and <dir>/<name>
// (OpenSSH private key, owner-only) and returns the private key path.
// Existing files are never replaced: when name is taken the key is saved as
// <name>_2, <name>_3 and so on.
func (s *Store) Save(kp vanityssh.KeyPair, name string) (string, error) {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", s.dir, err)
	}
	if err := os.Chmod(s.dir, dirMode); err != nil {
		return "", fmt.Errorf("failed to restrict %s: %w", s.dir, err)
	}

	block, err := ssh.MarshalPrivateKey(kp.PrivateKey(), "")
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}
	private := pem.EncodeToMemory(block)
	public := []byte(kp.AuthorizedKey() + "\n")

	for n := 1; n <= maxSuffix; n++ {
		base := name
		if n > 1 {
			base = fmt.Sprintf("%s_%d", name, n)
		}
		path := filepath.Join(s.dir, base)
		err := writePair(path, private, public)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, s.dir)
}

// writePair claims path for the private key first, then path.pub. A
// half-written pair is removed.
func writePair(path string, private, public []byte) error {
	if err := createFile(path, private, privateMode); err != nil {
		return err
	}
	if err := createFile(path+".pub", public, publicMode); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// createFile writes data to a new file at path with mode. It fails with
// fs.ErrExist when path already exists.
func createFile(path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	// The umask may have cleared bits of mode.
	if err := f.Chmod(mode); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
