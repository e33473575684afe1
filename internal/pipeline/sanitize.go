// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"regexp"
	"strings"
)

var (
	unsafeChars  = regexp.MustCompile(`[<>:"/\\?*\x00-\x1f]`)
	multiSpace   = regexp.MustCompile(`\s+`)
	releaseNoise = regexp.MustCompile(`(?i)[\.\s_](19|20)\d{2}[\.\s_].*$`)
)

// SafeName turns an arbitrary title into a filesystem-safe directory or file
// name. Pipes become spaces since "Title|Year" tags pass through here;
// everything else the OS objects to is stripped.
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "|", " ")
	name = unsafeChars.ReplaceAllString(name, "")
	name = multiSpace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// titleFromRelease recovers a human title from a release name like
// "Dune.Part.Two.2024.2160p.WEB-DL.x265": everything from the year on is
// release metadata, dots and underscores are word separators.
func titleFromRelease(name string) string {
	name = releaseNoise.ReplaceAllString(name, "")
	name = strings.NewReplacer(".", " ", "_", " ").Replace(name)
	return SafeName(name)
}
