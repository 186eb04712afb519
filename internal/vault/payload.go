package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound reports a lookup for an id the payload does not hold.
var ErrRecordNotFound = errors.New("record not found")

// Record is one credential entry of the vault payload.
type Record struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Username  string            `json:"username,omitempty"`
	Email     string            `json:"email,omitempty"`
	URL       string            `json:"url,omitempty"`
	Password  string            `json:"password,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Info      map[string]string `json:"info,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Meta carries payload-level bookkeeping. Pad is random filler that
// keeps the serialized payload above a configured minimum size so the
// ciphertext length does not reveal how few records a vault holds.
type Meta struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Pad       string    `json:"pad,omitempty"`
}

// Payload is the plaintext logical content of a vault: records keyed by
// id. Ids are random UUIDs, unique for the lifetime of the vault and
// never reused after deletion.
type Payload struct {
	Meta    Meta              `json:"meta"`
	Records map[string]Record `json:"records"`
}

// NewPayload returns an empty payload stamped with the current time.
func NewPayload() *Payload {
	now := time.Now().UTC()
	return &Payload{
		Meta:    Meta{CreatedAt: now, UpdatedAt: now},
		Records: make(map[string]Record),
	}
}

// Add stores a new record and returns its assigned id.
func (p *Payload) Add(r Record) (string, error) {
	if strings.TrimSpace(r.Label) == "" {
		return "", errors.New("record label is required")
	}
	now := time.Now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	p.Records[r.ID] = r
	p.touch()
	return r.ID, nil
}

// Get returns the record with the given id.
func (p *Payload) Get(id string) (Record, error) {
	r, ok := p.Records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return r, nil
}

// Update replaces the mutable fields of an existing record. The id and
// creation time are preserved; the update time is bumped.
func (p *Payload) Update(id string, r Record) error {
	old, ok := p.Records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if strings.TrimSpace(r.Label) == "" {
		return errors.New("record label is required")
	}
	r.ID = old.ID
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	p.Records[id] = r
	p.touch()
	return nil
}

// Delete removes a record. The id is never reassigned.
func (p *Payload) Delete(id string) error {
	if _, ok := p.Records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	delete(p.Records, id)
	p.touch()
	return nil
}

// List returns all records sorted by label, then id.
func (p *Payload) List() []Record {
	out := make([]Record, 0, len(p.Records))
	for _, r := range p.Records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Find returns records whose label contains q, case-insensitively.
func (p *Payload) Find(q string) []Record {
	q = strings.ToLower(strings.TrimSpace(q))
	var out []Record
	for _, r := range p.List() {
		if strings.Contains(strings.ToLower(r.Label), q) {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of records.
func (p *Payload) Len() int { return len(p.Records) }

func (p *Payload) touch() {
	p.Meta.UpdatedAt = time.Now().UTC()
}

// Marshal serializes the payload. Callers encrypt the returned buffer
// and must wipe it afterwards.
func (p *Payload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

// ParsePayload deserializes a decrypted payload buffer.
func ParsePayload(b []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.Records == nil {
		p.Records = make(map[string]Record)
	}
	return &p, nil
}

// EnsureMinSize grows Meta.Pad with random filler until the serialized
// payload is at least kb KiB. A zero or negative kb clears the padding.
func (p *Payload) EnsureMinSize(kb int) error {
	p.Meta.Pad = ""
	if kb <= 0 {
		return nil
	}
	target := kb * 1024

	for i := 0; i < 4; i++ {
		b, err := p.Marshal()
		if err != nil {
			return err
		}
		short := target - len(b)
		if short <= 0 {
			return nil
		}
		// base64 expands 3 bytes to 4; overshoot slightly rather
		// than loop again.
		raw := make([]byte, (short*3)/4+8)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generate padding: %w", err)
		}
		p.Meta.Pad += base64.StdEncoding.EncodeToString(raw)
	}

	b, err := p.Marshal()
	if err != nil {
		return err
	}
	if len(b) < target {
		return fmt.Errorf("padding converged short: %d of %d bytes", len(b), target)
	}
	return nil
}
