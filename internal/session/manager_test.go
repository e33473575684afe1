// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_TokenReusedWithinTTL(t *testing.T) {
	var logins atomic.Int32
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("token-%d", logins.Add(1)), nil
	})

	token1, err := m.Token(context.Background())
	require.NoError(t, err)
	token2, err := m.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "token-1", token1)
	assert.Equal(t, token1, token2)
	assert.Equal(t, int32(1), logins.Load())
}

func TestManager_ExpiredSessionTriggersSingleRelogin(t *testing.T) {
	var logins atomic.Int32
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("token-%d", logins.Add(1)), nil
	})

	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Token(context.Background())
	require.NoError(t, err)

	// Advance past the TTL.
	now = now.Add(2 * time.Minute)

	token, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.Equal(t, int32(2), logins.Load())
}

func TestManager_ConcurrentRefreshCoalesces(t *testing.T) {
	var logins atomic.Int32
	release := make(chan struct{})
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		<-release
		return fmt.Sprintf("token-%d", logins.Add(1)), nil
	})

	const callers = 16
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := m.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}

	// Let the callers pile up on the in-flight login, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), logins.Load(), "concurrent callers must share one login")
	for _, token := range tokens {
		assert.Equal(t, "token-1", token)
	}
}

func TestManager_AuthRejectionRetriesOnce(t *testing.T) {
	var logins atomic.Int32
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("token-%d", logins.Add(1)), nil
	})

	var calls []string
	err := m.With(context.Background(), func(ctx context.Context, token string) error {
		calls = append(calls, token)
		if token == "token-1" {
			return errors.Wrap(ErrAuthRejected, "got 403")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"token-1", "token-2"}, calls)
	assert.Equal(t, int32(2), logins.Load())
}

func TestManager_SecondRejectionPropagates(t *testing.T) {
	var logins atomic.Int32
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("token-%d", logins.Add(1)), nil
	})

	attempts := 0
	err := m.With(context.Background(), func(ctx context.Context, token string) error {
		attempts++
		return ErrAuthRejected
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, 2, attempts, "no third attempt after the retry is rejected")
}

func TestManager_LoginFailureIsHard(t *testing.T) {
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		return "", errors.New("connection refused")
	})

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginFailed)
}

func TestManager_InvalidateIgnoresStaleToken(t *testing.T) {
	var logins atomic.Int32
	m := NewManager("test", time.Minute, func(ctx context.Context) (string, error) {
		return fmt.Sprintf("token-%d", logins.Add(1)), nil
	})

	token, err := m.Token(context.Background())
	require.NoError(t, err)

	// A caller still holding an older, already-replaced token must not be
	// able to discard the live session.
	m.Invalidate("token-0")

	again, err := m.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, again)
	assert.Equal(t, int32(1), logins.Load())
}
