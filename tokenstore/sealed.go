package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrUnsealable is returned when a stored value cannot be opened with the configured key.
var ErrUnsealable = errors.New("tokenstore: value cannot be unsealed")

// SealedProvider wraps another provider and encrypts every value with NaCl secretbox
// before it reaches the backend.
type SealedProvider struct {
	inner Provider
	key   [32]byte
}

var _ Provider = (*SealedProvider)(nil)

// NewSealedProvider wraps inner with a 32 byte key.
func NewSealedProvider(inner Provider, key [32]byte) *SealedProvider {
	return &SealedProvider{inner: inner, key: key}
}

// ParseKey decodes a hex encoded 32 byte key.
func ParseKey(s string) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("[tokenstore ParseKey] %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("[tokenstore ParseKey] key must be %d bytes, got %d", len(key), len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func (p *SealedProvider) For(namespace string) Store {
	return NewSealedStore(p.inner.For(namespace), p.key)
}

// NewSealedStore wraps a single store.
func NewSealedStore(inner Store, key [32]byte) Store {
	return &sealedStore{inner: inner, key: key}
}

type sealedStore struct {
	inner Store
	key   [32]byte
}

func (s *sealedStore) Get(ctx context.Context, kind Kind) (string, error) {
	v, err := s.inner.Get(ctx, kind)
	if err != nil {
		return "", err
	}
	box, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil || len(box) < nonceSize {
		return "", ErrUnsealable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealable
	}
	return string(plain), nil
}

func (s *sealedStore) Set(ctx context.Context, kind Kind, value string) error {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("[sealedStore.Set] nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(value), &nonce, &s.key)
	return s.inner.Set(ctx, kind, base64.RawStdEncoding.EncodeToString(box))
}

func (s *sealedStore) Clear(ctx context.Context, kinds ...Kind) error {
	return s.inner.Clear(ctx, kinds...)
}
