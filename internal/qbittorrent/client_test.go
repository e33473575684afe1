// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam9s/media-assistant/internal/session"
)

// fakeQbt serves the WebUI endpoints the client touches, tracking logins and
// optionally rejecting the first authenticated call to exercise re-auth.
type fakeQbt struct {
	t            *testing.T
	logins       atomic.Int32
	rejectBefore int32 // authenticated calls below this count get a 403
	authCalls    atomic.Int32
	addResponse  string
	infoResponse string
	lastAdd      map[string]string
}

func (f *fakeQbt) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "hunter2" {
			w.Write([]byte("Fails."))
			return
		}
		f.logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "sid-token"})
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/add", f.authenticated(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseMultipartForm(1 << 20))
		f.lastAdd = map[string]string{
			"savepath": r.PostFormValue("savepath"),
			"category": r.PostFormValue("category"),
			"tags":     r.PostFormValue("tags"),
		}
		_, _, err := r.FormFile("torrents")
		require.NoError(f.t, err)
		w.Write([]byte(f.addResponse))
	}))
	mux.HandleFunc("/api/v2/torrents/info", f.authenticated(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(f.infoResponse))
	}))
	mux.HandleFunc("/torrent-file", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d8:announce0:e"))
	})
	return mux
}

func (f *fakeQbt) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := f.authCalls.Add(1)
		cookie, err := r.Cookie("SID")
		if err != nil || cookie.Value != "sid-token" || n <= f.rejectBefore {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func newFake(t *testing.T) (*fakeQbt, *Client, string) {
	f := &fakeQbt{t: t, addResponse: "Ok.", infoResponse: "[]"}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewClient(srv.URL, "admin", "hunter2"), srv.URL
}

func TestAddTorrentFromURL(t *testing.T) {
	f, client, baseURL := newFake(t)

	err := client.AddTorrentFromURL(context.Background(), AddTorrentOptions{
		DownloadURL: baseURL + "/torrent-file",
		SavePath:    "/data/torrents/movies",
		Category:    "hollywood",
		Tags:        "Dune Part Two|2024",
	})
	require.NoError(t, err)
	assert.Equal(t, "/data/torrents/movies", f.lastAdd["savepath"])
	assert.Equal(t, "hollywood", f.lastAdd["category"])
	assert.Equal(t, "Dune Part Two|2024", f.lastAdd["tags"])
	assert.Equal(t, int32(1), f.logins.Load())
}

func TestAddTorrentRejectedPayload(t *testing.T) {
	f, client, baseURL := newFake(t)
	f.addResponse = "Fails."

	err := client.AddTorrentFromURL(context.Background(), AddTorrentOptions{
		DownloadURL: baseURL + "/torrent-file",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestLoginFailureIsHard(t *testing.T) {
	srv := httptest.NewServer((&fakeQbt{t: t, infoResponse: "[]"}).handler())
	defer srv.Close()

	client := NewClient(srv.URL, "admin", "wrong")
	_, err := client.ActiveDownloads(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrLoginFailed)
}

func TestStaleSessionReauthenticatesOnce(t *testing.T) {
	f, client, _ := newFake(t)
	f.rejectBefore = 1 // first authenticated call 403s even with a good SID
	f.infoResponse = `[{"hash":"abc","name":"Dune","state":"downloading","progress":0.5,"dlspeed":2000000,"eta":120}]`

	downloads, err := client.ActiveDownloads(context.Background())
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestActiveDownloadsFormatting(t *testing.T) {
	f, client, _ := newFake(t)
	f.infoResponse = `[
	  {"hash":"a","name":"Dune","state":"downloading","progress":0.731,"dlspeed":5250000,"eta":3725,"category":"hollywood"},
	  {"hash":"b","name":"Stalled","state":"stalledDL","progress":0.1,"dlspeed":0,"eta":8640000}
	]`

	downloads, err := client.ActiveDownloads(context.Background())
	require.NoError(t, err)
	require.Len(t, downloads, 2)

	assert.Equal(t, 73.1, downloads[0].Progress)
	assert.Equal(t, 5.25, downloads[0].SpeedMBs)
	assert.Equal(t, "01:02:05", downloads[0].ETA)

	assert.Equal(t, "unknown", downloads[1].ETA)
}

func TestTorrentByHashAndName(t *testing.T) {
	f, client, _ := newFake(t)
	f.infoResponse = `[{"hash":"abc","name":"Dune.2024.2160p","tags":"Dune Part Two|2024","save_path":"/data/torrents/movies"}]`

	byHash, err := client.TorrentByHash(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, "Dune Part Two|2024", byHash.Tags)

	byName, err := client.TorrentByName(context.Background(), "Dune.2024.2160p")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "abc", byName.Hash)

	f.infoResponse = "[]"
	missing, err := client.TorrentByHash(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "00:00:45", formatETA(45))
	assert.Equal(t, "02:00:00", formatETA(7200))
	assert.Equal(t, "unknown", formatETA(-1))
	assert.Equal(t, "unknown", formatETA(8640000))
}
