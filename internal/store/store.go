// Package store saves usernames, passwords and echo message history per
// profile in a YAML file. Passwords are encrypted with a key kept in a
// separate file.
package store

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ovpngui/ovpngui/internal/echo"
	"github.com/ovpngui/ovpngui/internal/model"
	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/yaml.v3"
)

var (
	// ErrBadKey indicates a key file with the wrong size.
	ErrBadKey = errors.New("store: bad key file")

	// ErrDecrypt indicates a password we cannot decrypt.
	ErrDecrypt = errors.New("store: cannot decrypt")
)

const (
	keySize   = 32
	nonceSize = 24
)

// record is what we save for one profile.
type record struct {
	Username    string            `yaml:"username,omitempty"`
	Passwords   map[string]string `yaml:"passwords,omitempty"`
	EchoHistory []echo.Entry      `yaml:"echo_history,omitempty"`
}

// document is the file layout.
type document struct {
	Profiles map[string]*record `yaml:"profiles"`
}

// Store is a file backed store, safe for concurrent use. The zero value is
// invalid; use [Open].
type Store struct {
	mu     sync.Mutex
	path   string
	key    [keySize]byte
	doc    *document
	logger model.Logger
}

// Open loads the store at path, creating the key at keyPath when missing.
// A missing or unreadable store file starts empty.
func Open(path, keyPath string, logger model.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		doc:    &document{Profiles: make(map[string]*record)},
		logger: logger,
	}
	if err := s.loadKey(keyPath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		logger.Warnf("store: cannot read %s: %s", path, err.Error())
		return s, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logger.Warnf("store: cannot parse %s: %s", path, err.Error())
		return s, nil
	}
	if doc.Profiles != nil {
		s.doc = &doc
	}
	return s, nil
}

func (s *Store) loadKey(keyPath string) error {
	data, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
			return fmt.Errorf("store: cannot generate key: %w", err)
		}
		if err := writeFile(keyPath, s.key[:]); err != nil {
			return err
		}
		s.logger.Infof("store: created key %s", keyPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: cannot read key: %w", err)
	}
	if len(data) != keySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrBadKey, keySize, len(data))
	}
	copy(s.key[:], data)
	return nil
}

// writeFile atomically replaces path with data readable only by us.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("store: cannot create %s: %w", dir, err)
	}
	fp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("store: cannot write %s: %w", path, err)
	}
	defer os.Remove(fp.Name())
	if _, err := fp.Write(data); err != nil {
		fp.Close()
		return fmt.Errorf("store: cannot write %s: %w", path, err)
	}
	if err := fp.Close(); err != nil {
		return fmt.Errorf("store: cannot write %s: %w", path, err)
	}
	if err := os.Chmod(fp.Name(), 0600); err != nil {
		return fmt.Errorf("store: cannot write %s: %w", path, err)
	}
	if err := os.Rename(fp.Name(), path); err != nil {
		return fmt.Errorf("store: cannot write %s: %w", path, err)
	}
	return nil
}

// saveLocked writes the document. The caller holds mu.
func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("store: cannot marshal: %w", err)
	}
	return writeFile(s.path, data)
}

// recordLocked returns the record of profile, creating it when create is set.
func (s *Store) recordLocked(profile string, create bool) *record {
	r, found := s.doc.Profiles[profile]
	if !found && create {
		r = &record{}
		s.doc.Profiles[profile] = r
	}
	return r
}

// Username returns the saved username of profile.
func (s *Store) Username(profile string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, false)
	if r == nil || r.Username == "" {
		return "", false
	}
	return r.Username, true
}

// SetUsername saves the username of profile.
func (s *Store) SetUsername(profile, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, true)
	if r.Username == username {
		return nil
	}
	r.Username = username
	return s.saveLocked()
}

// Password returns the saved password with the given id.
func (s *Store) Password(profile, id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, false)
	if r == nil {
		return "", false
	}
	sealed, found := r.Passwords[id]
	if !found {
		return "", false
	}
	password, err := s.open(sealed)
	if err != nil {
		s.logger.Warnf("store: %s/%s: %s", profile, id, err.Error())
		return "", false
	}
	return password, true
}

// SetPassword saves an encrypted password with the given id.
func (s *Store) SetPassword(profile, id, password string) error {
	sealed, err := s.seal(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, true)
	if r.Passwords == nil {
		r.Passwords = make(map[string]string)
	}
	r.Passwords[id] = sealed
	return s.saveLocked()
}

// ForgetPasswords drops all the passwords of profile.
func (s *Store) ForgetPasswords(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, false)
	if r == nil || len(r.Passwords) == 0 {
		return nil
	}
	r.Passwords = nil
	return s.saveLocked()
}

// EchoHistory returns the saved echo history of profile.
func (s *Store) EchoHistory(profile string) []echo.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, false)
	if r == nil {
		return nil
	}
	return slices.Clone(r.EchoHistory)
}

// SaveEchoHistory replaces the echo history of profile.
func (s *Store) SaveEchoHistory(profile string, entries []echo.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.recordLocked(profile, true)
	r.EchoHistory = slices.Clone(entries)
	return s.saveLocked()
}

// seal encrypts password with a random nonce prepended to the box.
func (s *Store) seal(password string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("store: cannot generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(password), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *Store) open(sealed string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
