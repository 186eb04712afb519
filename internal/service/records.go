package service

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
)

// Record operations require a live session. Mutations are audited and
// every call postpones the auto-lock deadline.

// AddRecord stores a new record and returns its id.
func (s *Service) AddRecord(r vault.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return "", ErrLocked
	}
	id, err := s.payload.Add(r)
	if err != nil {
		return "", err
	}
	s.dirty = true
	s.log.EventDetail("add", r.Label)
	s.touch()
	return id, nil
}

// GetRecord returns the record with the given id.
func (s *Service) GetRecord(id string) (vault.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return vault.Record{}, ErrLocked
	}
	r, err := s.payload.Get(id)
	if err != nil {
		return vault.Record{}, err
	}
	s.touch()
	return r, nil
}

// UpdateRecord replaces the mutable fields of an existing record.
func (s *Service) UpdateRecord(id string, r vault.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ErrLocked
	}
	if err := s.payload.Update(id, r); err != nil {
		return err
	}
	s.dirty = true
	s.log.EventDetail("update", r.Label)
	s.touch()
	return nil
}

// DeleteRecord removes a record.
func (s *Service) DeleteRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ErrLocked
	}
	r, err := s.payload.Get(id)
	if err != nil {
		return err
	}
	if err := s.payload.Delete(id); err != nil {
		return err
	}
	s.dirty = true
	s.log.EventDetail("delete", r.Label)
	s.touch()
	return nil
}

// ListRecords returns all records sorted by label.
func (s *Service) ListRecords() ([]vault.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, ErrLocked
	}
	s.touch()
	return s.payload.List(), nil
}

// FindRecords returns records whose label contains q.
func (s *Service) FindRecords(q string) ([]vault.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, ErrLocked
	}
	s.touch()
	return s.payload.Find(q), nil
}

// RecordCount reports the number of stored records.
func (s *Service) RecordCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return 0, ErrLocked
	}
	return s.payload.Len(), nil
}

// passwordChars is the generator alphabet: letters, digits and a
// conservative special set that survives copy-paste into web forms.
const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$_-+.^*?"

const (
	minGenLen = 8
	maxGenLen = 128
)

// GeneratePassword returns a random password of the requested length,
// clamped to 8..128 characters.
func GeneratePassword(length int) (string, error) {
	if length < minGenLen {
		length = minGenLen
	}
	if length > maxGenLen {
		length = maxGenLen
	}
	out := make([]byte, length)
	max := big.NewInt(int64(len(passwordChars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = passwordChars[n.Int64()]
	}
	return string(out), nil
}
