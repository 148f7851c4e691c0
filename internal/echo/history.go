package echo

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"time"
)

// Fingerprint identifies a displayed message. Two messages with the same
// digest are the same message whatever their arrival time.
type Fingerprint struct {
	Digest    [sha1.Size]byte
	Timestamp time.Time
}

// NewFingerprint returns the fingerprint of msg received at ts.
func NewFingerprint(msg *Message, ts time.Time) Fingerprint {
	h := sha1.New()
	h.Write([]byte(msg.Title))
	h.Write([]byte{0})
	h.Write([]byte(msg.Text))
	fp := Fingerprint{Timestamp: ts}
	copy(fp.Digest[:], h.Sum(nil))
	return fp
}

// Entry is the serializable form of a history record.
type Entry struct {
	Digest    string    `yaml:"digest"`
	Timestamp time.Time `yaml:"timestamp"`
}

// History remembers when each message was last displayed. The zero value
// is not ready to use; use [NewHistory].
type History struct {
	seen map[[sha1.Size]byte]time.Time
}

// NewHistory restores a history from saved entries, skipping bad digests.
func NewHistory(entries []Entry) *History {
	h := &History{seen: make(map[[sha1.Size]byte]time.Time)}
	for _, e := range entries {
		raw, err := hex.DecodeString(e.Digest)
		if err != nil || len(raw) != sha1.Size {
			continue
		}
		var digest [sha1.Size]byte
		copy(digest[:], raw)
		h.seen[digest] = e.Timestamp
	}
	return h
}

// Muted returns whether the message was displayed less than interval
// before fp.Timestamp. A non-positive interval mutes nothing.
func (h *History) Muted(fp Fingerprint, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	last, found := h.seen[fp.Digest]
	return found && fp.Timestamp.Sub(last) < interval
}

// Record remembers that the message was displayed at fp.Timestamp.
func (h *History) Record(fp Fingerprint) {
	h.seen[fp.Digest] = fp.Timestamp
}

// Prune forgets the messages displayed before cutoff.
func (h *History) Prune(cutoff time.Time) {
	for digest, ts := range h.seen {
		if ts.Before(cutoff) {
			delete(h.seen, digest)
		}
	}
}

// Entries returns the history sorted by digest.
func (h *History) Entries() []Entry {
	out := make([]Entry, 0, len(h.seen))
	for digest, ts := range h.seen {
		out = append(out, Entry{Digest: hex.EncodeToString(digest[:]), Timestamp: ts})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Digest < out[j].Digest
	})
	return out
}
