// Package tokenstore persists the small set of client-side values the console keeps between
// requests: the access/refresh token pair and the user's display preferences.
//
// Values are opaque strings. Nothing in this package inspects or validates them.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
)

// Kind names one persisted value.
type Kind string

const (
	AccessToken     Kind = "access_token"
	RefreshToken    Kind = "refresh_token"
	UserPreferences Kind = "user_preferences"
	Theme           Kind = "theme"
)

// Kinds lists every key a store may hold.
var Kinds = []Kind{AccessToken, RefreshToken, UserPreferences, Theme}

// ErrNotFound is returned by Get when nothing is stored under the kind.
var ErrNotFound = errors.New("tokenstore: not found")

// Store is the get/set/clear contract over one persisted namespace.
type Store interface {
	Get(ctx context.Context, kind Kind) (string, error)
	Set(ctx context.Context, kind Kind, value string) error
	Clear(ctx context.Context, kinds ...Kind) error
}

// Provider hands out stores scoped to a namespace, e.g. one per browser.
type Provider interface {
	For(namespace string) Store
}

// Pair is the access/refresh token pair as persisted.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether neither token is present.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// LoadPair reads both tokens. Missing tokens come back empty rather than as an error.
func LoadPair(ctx context.Context, s Store) (Pair, error) {
	access, err := getOptional(ctx, s, AccessToken)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := getOptional(ctx, s, RefreshToken)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// SavePair persists both tokens.
func SavePair(ctx context.Context, s Store, p Pair) error {
	if err := s.Set(ctx, AccessToken, p.AccessToken); err != nil {
		return fmt.Errorf("[tokenstore SavePair] access token: %w", err)
	}
	if err := s.Set(ctx, RefreshToken, p.RefreshToken); err != nil {
		return fmt.Errorf("[tokenstore SavePair] refresh token: %w", err)
	}
	return nil
}

// ClearPair removes both tokens and leaves preferences alone.
func ClearPair(ctx context.Context, s Store) error {
	return s.Clear(ctx, AccessToken, RefreshToken)
}

func getOptional(ctx context.Context, s Store, kind Kind) (string, error) {
	v, err := s.Get(ctx, kind)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("[tokenstore] get %s: %w", kind, err)
	}
	return v, nil
}
