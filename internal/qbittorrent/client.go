// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent is a minimal qBittorrent WebUI API client covering the
// endpoints the download workflow needs: add by URL, torrent info, and the
// tag round-trip that carries media identity from search to completion.
package qbittorrent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sam9s/media-assistant/internal/buildinfo"
	"github.com/sam9s/media-assistant/internal/session"
)

// The WebUI invalidates idle sessions after 30 minutes by default; refreshing
// ahead of that keeps the 403 path exceptional rather than routine.
const sessionTTL = 25 * time.Minute

type Client struct {
	baseURL string
	http    *http.Client
	session *session.Manager
}

func NewClient(baseURL, username, password string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	c.session = session.NewManager("qbittorrent", sessionTTL, func(ctx context.Context) (string, error) {
		return c.login(ctx, username, password)
	})
	return c
}

// login posts the WebUI auth form. qBittorrent answers 200 with a literal
// "ok." body on success and "Fails." on bad credentials, so the body and the
// SID cookie both have to be checked.
func (c *Client) login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK || !strings.EqualFold(strings.TrimSpace(string(body)), "ok.") {
		return "", fmt.Errorf("credentials rejected (status %d)", resp.StatusCode)
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "SID" && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", errors.New("login response carried no SID cookie")
}

// do issues one authenticated request. A 403 means the SID went stale
// server-side; that is surfaced as ErrAuthRejected so the session manager
// can re-login and retry.
func (c *Client) do(ctx context.Context, sid, method, path, contentType string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.AddCookie(&http.Cookie{Name: "SID", Value: sid})
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, errors.Wrapf(session.ErrAuthRejected, "qbittorrent %s", path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qbittorrent %s: unexpected status %d", path, resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// AddTorrentOptions carries everything /torrents/add needs. Tags is the
// identity tag ("Title|Year") that the completion pipeline reads back.
type AddTorrentOptions struct {
	DownloadURL string
	SavePath    string
	Category    string
	Tags        string
}

// AddTorrentFromURL downloads the .torrent payload itself and uploads it as
// a multipart file. Handing qBittorrent the URL directly would fail for
// trackers whose download links embed a per-session passkey.
func (c *Client) AddTorrentFromURL(ctx context.Context, opts AddTorrentOptions) error {
	torrent, err := c.fetchTorrentFile(ctx, opts.DownloadURL)
	if err != nil {
		return errors.Wrap(err, "fetch torrent file")
	}

	return c.session.With(ctx, func(ctx context.Context, sid string) error {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)

		part, err := w.CreateFormFile("torrents", "release.torrent")
		if err != nil {
			return err
		}
		if _, err := part.Write(torrent); err != nil {
			return err
		}
		for _, field := range []struct{ name, value string }{
			{"savepath", opts.SavePath},
			{"category", opts.Category},
			{"tags", opts.Tags},
		} {
			if field.value == "" {
				continue
			}
			if err := w.WriteField(field.name, field.value); err != nil {
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}

		body, err := c.do(ctx, sid, http.MethodPost, "/api/v2/torrents/add", w.FormDataContentType(), &buf)
		if err != nil {
			return err
		}
		// The endpoint reports a rejected payload with 200 and "Fails.".
		if strings.EqualFold(strings.TrimSpace(string(body)), "fails.") {
			return errors.New("qbittorrent rejected the torrent payload")
		}
		return nil
	})
}

func (c *Client) fetchTorrentFile(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Torrent is the subset of /torrents/info this service consumes.
type Torrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	DlSpeed  int64   `json:"dlspeed"`
	ETA      int64   `json:"eta"`
	Category string  `json:"category"`
	Tags     string  `json:"tags"`
	SavePath string  `json:"save_path"`
}

func (c *Client) torrentsInfo(ctx context.Context, params url.Values) ([]Torrent, error) {
	return session.Do(ctx, c.session, func(ctx context.Context, sid string) ([]Torrent, error) {
		path := "/api/v2/torrents/info"
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
		body, err := c.do(ctx, sid, http.MethodGet, path, "", nil)
		if err != nil {
			return nil, err
		}
		var torrents []Torrent
		if err := json.Unmarshal(body, &torrents); err != nil {
			return nil, errors.Wrap(err, "decode torrents info")
		}
		return torrents, nil
	})
}

// TorrentByHash returns the torrent with the given info-hash, or nil when
// qBittorrent no longer knows it.
func (c *Client) TorrentByHash(ctx context.Context, hash string) (*Torrent, error) {
	params := url.Values{}
	params.Set("hashes", hash)

	torrents, err := c.torrentsInfo(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(torrents) == 0 {
		return nil, nil
	}
	return &torrents[0], nil
}

// TorrentByName resolves a torrent by its display name. Completion hooks
// always carry the name; the hash is optional.
func (c *Client) TorrentByName(ctx context.Context, name string) (*Torrent, error) {
	torrents, err := c.torrentsInfo(ctx, url.Values{})
	if err != nil {
		return nil, err
	}
	for i := range torrents {
		if torrents[i].Name == name {
			return &torrents[i], nil
		}
	}
	return nil, nil
}

// DownloadStatus is one in-flight download rendered for the status endpoint.
type DownloadStatus struct {
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	SpeedMBs float64 `json:"speed_mbs"`
	ETA      string  `json:"eta"`
	Category string  `json:"category,omitempty"`
}

// ActiveDownloads lists torrents currently downloading, with progress as a
// percentage and speed in MB/s.
func (c *Client) ActiveDownloads(ctx context.Context) ([]DownloadStatus, error) {
	params := url.Values{}
	params.Set("filter", "downloading")

	torrents, err := c.torrentsInfo(ctx, params)
	if err != nil {
		return nil, err
	}

	statuses := make([]DownloadStatus, 0, len(torrents))
	for _, t := range torrents {
		statuses = append(statuses, DownloadStatus{
			Name:     t.Name,
			State:    t.State,
			Progress: math.Round(t.Progress*1000) / 10,
			SpeedMBs: math.Round(float64(t.DlSpeed)/1e6*100) / 100,
			ETA:      formatETA(t.ETA),
			Category: t.Category,
		})
	}
	return statuses, nil
}

// formatETA renders seconds as hh:mm:ss. qBittorrent reports 8640000 for
// "infinity"; anything negative or beyond 30 days is unknown.
func formatETA(seconds int64) string {
	const thirtyDays = 30 * 24 * 3600
	if seconds < 0 || seconds > thirtyDays {
		return "unknown"
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
