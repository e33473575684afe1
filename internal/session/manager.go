// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package session provides a shared token cache for backends that require a
// login-then-bearer or login-then-cookie authentication flow. Every
// authenticated backend call in this codebase goes through a Manager; no
// client caches tokens on its own.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/sam9s/media-assistant/internal/metrics"
)

var (
	// ErrAuthRejected is returned (wrapped) by operations when the backend
	// rejects the presented token. The manager reacts by invalidating the
	// cached session and retrying the operation exactly once.
	ErrAuthRejected = errors.New("authentication rejected by backend")

	// ErrLoginFailed wraps login errors: bad credentials, unreachable
	// backend, or a login response missing the expected token field.
	// Never retried by the manager.
	ErrLoginFailed = errors.New("login failed")
)

// LoginFunc performs a fresh login and returns the new token.
type LoginFunc func(ctx context.Context) (string, error)

// Manager owns one backend's cached session. Concurrent callers observing an
// expired session coalesce on a single login via singleflight.
type Manager struct {
	name  string
	ttl   time.Duration
	login LoginFunc
	now   func() time.Time

	mu       sync.RWMutex
	token    string
	issuedAt time.Time

	group singleflight.Group
}

func NewManager(name string, ttl time.Duration, login LoginFunc) *Manager {
	return &Manager{
		name:  name,
		ttl:   ttl,
		login: login,
		now:   time.Now,
	}
}

// Token returns a currently valid token, logging in first when the cached
// session is absent or expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}
	return m.refresh(ctx)
}

func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" || m.now().Sub(m.issuedAt) >= m.ttl {
		return "", false
	}
	return m.token, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	v, err, shared := m.group.Do("login", func() (any, error) {
		// A concurrent caller may have refreshed while we waited.
		if token, ok := m.cached(); ok {
			return token, nil
		}

		token, err := m.login(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %v", ErrLoginFailed, m.name, err)
		}

		m.mu.Lock()
		m.token = token
		m.issuedAt = m.now()
		m.mu.Unlock()

		log.Debug().Str("backend", m.name).Msg("Session refreshed")
		metrics.IncSessionLogin(m.name)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Trace().Str("backend", m.name).Msg("Session refresh coalesced with concurrent caller")
	}
	return v.(string), nil
}

// Invalidate drops the cached session, but only if token is still the one in
// the cache. A caller holding a token that was already replaced must not
// discard the newer session.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == token {
		m.token = ""
		m.issuedAt = time.Time{}
	}
}

// With runs op with a valid token. If op reports ErrAuthRejected the manager
// invalidates the session, logs in again, and retries op exactly once. A
// second rejection propagates; the TTL can disagree with server-side
// invalidation, but a rejection after a fresh login means misconfigured
// credentials, not clock skew.
func (m *Manager) With(ctx context.Context, op func(ctx context.Context, token string) error) error {
	token, err := m.Token(ctx)
	if err != nil {
		return err
	}

	err = op(ctx, token)
	if err == nil || !errors.Is(err, ErrAuthRejected) {
		return err
	}

	log.Debug().Str("backend", m.name).Msg("Token rejected, re-authenticating once")
	m.Invalidate(token)

	token, err = m.Token(ctx)
	if err != nil {
		return err
	}
	return op(ctx, token)
}

// Do is With for operations that produce a value.
func Do[T any](ctx context.Context, m *Manager, op func(ctx context.Context, token string) (T, error)) (T, error) {
	var out T
	err := m.With(ctx, func(ctx context.Context, token string) error {
		v, err := op(ctx, token)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
