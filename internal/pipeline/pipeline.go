// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pipeline turns a finished download into a library entry: resolve
// what the torrent is, normalize its file names, copy it into the media
// tree, and nudge the media server to pick it up.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/sam9s/media-assistant/internal/domain"
	"github.com/sam9s/media-assistant/internal/qbittorrent"
)

// TorrentResolver resolves a completed torrent back to its client record,
// which carries the identity tag attached at download time.
type TorrentResolver interface {
	TorrentByHash(ctx context.Context, hash string) (*qbittorrent.Torrent, error)
	TorrentByName(ctx context.Context, name string) (*qbittorrent.Torrent, error)
}

// LibraryRefresher triggers a media server rescan after files land.
type LibraryRefresher interface {
	RefreshLibrary(ctx context.Context) error
}

type Pipeline struct {
	resolver   TorrentResolver
	refresher  LibraryRefresher
	mediaPaths map[string]string
}

// New builds a completion pipeline. mediaPaths maps a download category to
// the library directory its content is copied into; refresher may be nil
// when no media server is configured.
func New(resolver TorrentResolver, refresher LibraryRefresher, mediaPaths map[string]string) *Pipeline {
	return &Pipeline{
		resolver:   resolver,
		refresher:  refresher,
		mediaPaths: mediaPaths,
	}
}

// Complete processes one finished download. The rename and copy must
// succeed; the final library refresh is best-effort and only reflected in
// the result flag.
func (p *Pipeline) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	destRoot, ok := p.mediaPaths[req.Category]
	if !ok {
		return nil, fmt.Errorf("no media path configured for category %q", req.Category)
	}

	title, year := p.resolveIdentity(ctx, req)
	target := SafeName(title)
	if year != "" {
		target = fmt.Sprintf("%s (%s)", target, year)
	}
	if target == "" {
		return nil, errors.New("could not derive a name for the download")
	}

	result := &domain.CompletionResult{Target: target}

	contentPath, renamed, err := p.normalize(req.ContentPath, target)
	if err != nil {
		return nil, err
	}
	result.Renamed = renamed

	// Directories keep the target name in the library; single files land
	// flat in the category root.
	dest := filepath.Join(destRoot, target)
	if info, err := os.Stat(contentPath); err == nil && !info.IsDir() {
		dest = filepath.Join(destRoot, filepath.Base(contentPath))
	}
	if _, err := os.Stat(dest); err == nil {
		log.Info().Str("dest", dest).Msg("Destination already exists, skipping copy")
	} else {
		if err := copyTree(contentPath, dest); err != nil {
			return nil, errors.Wrap(err, "copy to media tree")
		}
		result.Copied = true
	}

	if p.refresher != nil {
		if err := p.refresher.RefreshLibrary(ctx); err != nil {
			log.Warn().Err(err).Msg("Library refresh failed, files are in place")
		} else {
			result.LibraryRefreshed = true
		}
	}

	return result, nil
}

// resolveIdentity recovers the human title and year. The authoritative
// source is the "Title|Year" tag attached when the download was queued; a
// download added outside this service falls back to its release name.
func (p *Pipeline) resolveIdentity(ctx context.Context, req domain.CompletionRequest) (title, year string) {
	torrent := p.lookupTorrent(ctx, req)
	if torrent != nil {
		if t, y, ok := parseIdentityTag(torrent.Tags); ok {
			return t, y
		}
	}

	log.Debug().Str("name", req.Name).Msg("No identity tag, deriving name from release")
	return titleFromRelease(req.Name), ""
}

func (p *Pipeline) lookupTorrent(ctx context.Context, req domain.CompletionRequest) *qbittorrent.Torrent {
	if p.resolver == nil {
		return nil
	}
	if req.InfoHash != "" {
		if t, err := p.resolver.TorrentByHash(ctx, req.InfoHash); err == nil && t != nil {
			return t
		}
	}
	if t, err := p.resolver.TorrentByName(ctx, req.Name); err == nil && t != nil {
		return t
	}
	return nil
}

// parseIdentityTag finds the "Title|Year" tag in qBittorrent's
// comma-separated tag list. The year part may be empty.
func parseIdentityTag(tags string) (title, year string, ok bool) {
	for _, tag := range strings.Split(tags, ",") {
		tag = strings.TrimSpace(tag)
		if t, y, found := strings.Cut(tag, "|"); found && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t), strings.TrimSpace(y), true
		}
	}
	return "", "", false
}

// normalize renames the downloaded content to the target name. A directory
// gets its largest media file renamed inside it, then is renamed itself; a
// bare file is renamed in place. Existing targets are left alone. A path
// already renamed by an earlier completion of the same download is picked
// up where it stands, so repeated completion events stay idempotent.
func (p *Pipeline) normalize(contentPath, target string) (string, []string, error) {
	info, err := os.Stat(contentPath)
	if err != nil {
		if prior := renamedSurvivor(contentPath, target); prior != "" {
			log.Debug().Str("path", prior).Msg("Content already renamed by an earlier completion")
			return prior, nil, nil
		}
		return "", nil, errors.Wrap(err, "stat content path")
	}

	var renamed []string

	if !info.IsDir() {
		newPath, err := renameKeepingExt(contentPath, target)
		if err != nil {
			return "", nil, err
		}
		if newPath != contentPath {
			renamed = append(renamed, filepath.Base(newPath))
		}
		return newPath, renamed, nil
	}

	if mediaFile := largestMediaFile(contentPath); mediaFile != "" {
		newPath, err := renameKeepingExt(mediaFile, target)
		if err != nil {
			return "", nil, err
		}
		if newPath != mediaFile {
			renamed = append(renamed, filepath.Base(newPath))
		}
	}

	newDir := filepath.Join(filepath.Dir(contentPath), target)
	if newDir == contentPath {
		return contentPath, renamed, nil
	}
	if _, err := os.Stat(newDir); err == nil {
		return contentPath, renamed, nil
	}
	if err := os.Rename(contentPath, newDir); err != nil {
		return "", nil, errors.Wrap(err, "rename content directory")
	}
	renamed = append(renamed, target)
	return newDir, renamed, nil
}

// renamedSurvivor locates content a previous completion left behind under
// the target name: the target-named directory, or the target-named file
// keeping the reported path's extension.
func renamedSurvivor(contentPath, target string) string {
	dir := filepath.Dir(contentPath)
	for _, candidate := range []string{
		filepath.Join(dir, target),
		filepath.Join(dir, target+strings.ToLower(filepath.Ext(contentPath))),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func renameKeepingExt(path, target string) (string, error) {
	newPath := filepath.Join(filepath.Dir(path), target+strings.ToLower(filepath.Ext(path)))
	if newPath == path {
		return path, nil
	}
	if _, err := os.Stat(newPath); err == nil {
		return newPath, nil
	}
	if err := os.Rename(path, newPath); err != nil {
		return "", errors.Wrap(err, "rename media file")
	}
	return newPath, nil
}

// largestMediaFile walks a download directory for the biggest file with a
// recognized media extension. Samples and junk are smaller by nature, so
// size alone is a reliable pick.
func largestMediaFile(dir string) string {
	var best string
	var bestSize int64

	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !domain.IsVideoExtension(ext) && !domain.IsEbookExtension(ext) {
			return nil
		}
		if info.Size() > bestSize {
			best, bestSize = path, info.Size()
		}
		return nil
	})
	return best
}

// copyTree copies a file or directory tree. Content errors abort; metadata
// errors (permissions, timestamps on exotic filesystems) do not, matching
// how downloads land on network shares.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return copyFile(src, dst, info)
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(targetPath, 0o755)
		}
		return copyFile(path, targetPath, info)
	})
}

func copyFile(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, info.Mode()); err != nil {
		log.Debug().Err(err).Str("file", dst).Msg("Could not preserve file mode")
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		log.Debug().Err(err).Str("file", dst).Msg("Could not preserve timestamps")
	}
	return nil
}
