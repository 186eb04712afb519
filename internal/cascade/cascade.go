// Package cascade implements the layered encryption pipeline protecting
// vault payloads: a fixed base order of AES-256-GCM, a keyed XOR pad and
// ChaCha20-Poly1305, plus configurable extra stages, every stage keyed
// independently from the master key. A sealed frame carries the per-stage
// public material, the layered ciphertext and a trailing HMAC-SHA512 over
// header and frame, so any tampered bit fails the whole operation. The
// XOR pad stage contributes diffusion only; the AEAD layers carry all
// confidentiality and integrity claims.
package cascade

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

// ErrAuthenticationFailed reports any tag or MAC mismatch anywhere in
// the cascade. Callers never learn which stage rejected.
var ErrAuthenticationFailed = errors.New("authentication failed")

const (
	// macStageIndex and macKeyTag reserve a sub-key domain for the
	// outer frame MAC, disjoint from every stage index.
	macStageIndex = 0xff
	macKeyTag     = "mac"
	macLen        = sha512.Size
)

// Seal encrypts plaintext through the stage sequence and returns the
// frame: per-stage material, ciphertext, trailing MAC. Fresh random
// material is generated for every stage on every call; sealing the same
// plaintext twice never reuses a nonce or pad seed. header is
// authenticated by every AEAD stage and by the outer MAC but is not part
// of the returned frame.
func Seal(mk *krypto.MasterKey, header []byte, stages []Stage, plaintext []byte) ([]byte, error) {
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}
	if !mk.Valid() {
		return nil, fmt.Errorf("%w: master key unavailable", krypto.ErrKdf)
	}

	materials := make([][]byte, len(stages))
	for i, st := range stages {
		m := make([]byte, st.materialSize())
		if _, err := io.ReadFull(rand.Reader, m); err != nil {
			return nil, fmt.Errorf("generate stage material: %w", err)
		}
		materials[i] = m
	}

	buf := append([]byte(nil), plaintext...)
	for i, st := range stages {
		key, err := krypto.StageKey(mk, st.Index, st.keyTag(), st.keySize())
		if err != nil {
			krypto.Wipe(buf)
			return nil, err
		}
		switch st.Kind {
		case StageAEAD:
			aead, aerr := krypto.NewAEAD(st.Suite, key)
			if aerr != nil {
				krypto.Wipe(key)
				krypto.Wipe(buf)
				return nil, aerr
			}
			out := aead.Seal(nil, materials[i], buf, header)
			krypto.Wipe(buf)
			buf = out
		case StageXorPad:
			krypto.XORPad(key, materials[i], buf)
		}
		krypto.Wipe(key)
	}

	frame := encodeMaterials(stages, materials)
	frame = append(frame, buf...)

	tag, err := frameMAC(mk, header, frame)
	if err != nil {
		krypto.Wipe(buf)
		return nil, err
	}
	return append(frame, tag...), nil
}

// Open verifies and unwinds a sealed frame. The outer MAC is checked
// first, in constant time; the stages then run in reverse order. Any
// failure yields ErrAuthenticationFailed with no partial plaintext.
func Open(mk *krypto.MasterKey, header []byte, stages []Stage, frame []byte) ([]byte, error) {
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}
	if !mk.Valid() {
		return nil, fmt.Errorf("%w: master key unavailable", krypto.ErrKdf)
	}
	if len(frame) < macLen {
		return nil, ErrAuthenticationFailed
	}

	body, tag := frame[:len(frame)-macLen], frame[len(frame)-macLen:]
	expect, err := frameMAC(mk, header, body)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(tag, expect) {
		return nil, ErrAuthenticationFailed
	}

	materials, ciphertext, err := parseMaterials(stages, body)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	buf := append([]byte(nil), ciphertext...)
	for i := len(stages) - 1; i >= 0; i-- {
		st := stages[i]
		key, kerr := krypto.StageKey(mk, st.Index, st.keyTag(), st.keySize())
		if kerr != nil {
			krypto.Wipe(buf)
			return nil, kerr
		}
		switch st.Kind {
		case StageAEAD:
			aead, aerr := krypto.NewAEAD(st.Suite, key)
			if aerr != nil {
				krypto.Wipe(key)
				krypto.Wipe(buf)
				return nil, aerr
			}
			out, oerr := aead.Open(nil, materials[i], buf, header)
			krypto.Wipe(key)
			if oerr != nil {
				krypto.Wipe(buf)
				return nil, ErrAuthenticationFailed
			}
			krypto.Wipe(buf)
			buf = out
		case StageXorPad:
			krypto.XORPad(key, materials[i], buf)
			krypto.Wipe(key)
		}
	}
	return buf, nil
}

// encodeMaterials serializes per-stage material as length-prefixed runs
// in stage order.
func encodeMaterials(stages []Stage, materials [][]byte) []byte {
	size := 0
	for _, m := range materials {
		size += 1 + len(m)
	}
	out := make([]byte, 0, size)
	for _, m := range materials {
		out = append(out, byte(len(m)))
		out = append(out, m...)
	}
	return out
}

// parseMaterials splits a frame body back into per-stage material and
// the ciphertext. Lengths must match what each stage requires.
func parseMaterials(stages []Stage, body []byte) ([][]byte, []byte, error) {
	materials := make([][]byte, len(stages))
	off := 0
	for i, st := range stages {
		if off >= len(body) {
			return nil, nil, fmt.Errorf("frame truncated in stage %d material", i)
		}
		n := int(body[off])
		off++
		if n != st.materialSize() {
			return nil, nil, fmt.Errorf("stage %d material length %d, want %d", i, n, st.materialSize())
		}
		if off+n > len(body) {
			return nil, nil, fmt.Errorf("frame truncated in stage %d material", i)
		}
		materials[i] = body[off : off+n]
		off += n
	}
	return materials, body[off:], nil
}

// frameMAC computes the outer HMAC-SHA512 over header and frame body
// with a dedicated sub-key.
func frameMAC(mk *krypto.MasterKey, header, body []byte) ([]byte, error) {
	key, err := krypto.StageKey(mk, macStageIndex, macKeyTag, macLen)
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(key)

	h := hmac.New(sha512.New, key)
	h.Write(header)
	h.Write(body)
	return h.Sum(nil), nil
}
