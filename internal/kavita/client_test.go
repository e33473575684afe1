// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package kavita

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam9s/media-assistant/internal/session"
)

type fakeKavita struct {
	t              *testing.T
	logins         atomic.Int32
	scans          []int
	searchResponse string
}

func (f *fakeKavita) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Account/login", func(w http.ResponseWriter, r *http.Request) {
		var creds struct{ Username, Password string }
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.logins.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"token": "jwt-token"})
	})
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer jwt-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/api/Library/libraries", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"name":"Novels"},{"id":2,"name":"Comics (EN)"},{"id":3,"name":"Magazines"}]`))
	}))
	mux.HandleFunc("/api/Library/scan", auth(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.URL.Query().Get("libraryId"))
		require.NoError(f.t, err)
		f.scans = append(f.scans, id)
		w.WriteHeader(http.StatusOK)
	}))
	mux.HandleFunc("/api/Search/search", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(f.searchResponse))
	}))
	return mux
}

func newFake(t *testing.T) (*fakeKavita, *Client) {
	f := &fakeKavita{t: t, searchResponse: `{"series":[]}`}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewClient(srv.URL, "admin", "hunter2")
}

func TestLibrariesReusesSession(t *testing.T) {
	f, client := newFake(t)

	for i := 0; i < 3; i++ {
		libraries, err := client.Libraries(context.Background())
		require.NoError(t, err)
		assert.Len(t, libraries, 3)
	}
	assert.Equal(t, int32(1), f.logins.Load())
}

func TestLibraryID(t *testing.T) {
	_, client := newFake(t)

	id, err := client.LibraryID(context.Background(), "novels")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	// Fuzzy fallback when no name matches exactly.
	id, err = client.LibraryID(context.Background(), "comics")
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	_, err = client.LibraryID(context.Background(), "audiobooks")
	assert.Error(t, err)
}

func TestScanLibrary(t *testing.T) {
	f, client := newFake(t)

	require.NoError(t, client.ScanLibrary(context.Background(), 2))
	assert.Equal(t, []int{2}, f.scans)
}

func TestIsInLibrary(t *testing.T) {
	f, client := newFake(t)
	f.searchResponse = `{"series":[{"seriesId":10,"name":"The Great Gatsby","libraryId":1}]}`

	found, err := client.IsInLibrary(context.Background(), "the great gatsby")
	require.NoError(t, err)
	assert.True(t, found)

	f.searchResponse = `{"series":[]}`
	found, err = client.IsInLibrary(context.Background(), "moby dick")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoginFailureIsHard(t *testing.T) {
	f := &fakeKavita{t: t}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "wrong")
	_, err := client.Libraries(context.Background())
	assert.ErrorIs(t, err, session.ErrLoginFailed)
}
