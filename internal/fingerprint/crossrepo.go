// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package fingerprint

import (
	"sort"
	"strings"
)

// MaxFileSize is the per-file byte cap for cross-repo scanning.
const MaxFileSize = 100000

// skipSegments are path fragments excluded from scanning: generated,
// vendored and minified artifacts that match across unrelated projects.
var skipSegments = []string{
	"node_modules/",
	"package-lock.json",
	".min.",
	"vendor/",
	"dist/",
}

// File is one (path, content) pair of a repository snapshot.
type File struct {
	Path    string
	Content string
}

// Repo is a repository snapshot identified by an opaque key
// (typically "owner/name").
type Repo struct {
	Key   string
	Files []File
}

// Match is a cross-repository file pair at or above the scan threshold.
type Match struct {
	RepoA            string  `json:"repoA"`
	RepoB            string  `json:"repoB"`
	PathA            string  `json:"pathA"`
	PathB            string  `json:"pathB"`
	Similarity       float64 `json:"similarity"`
	IdenticalContent bool    `json:"identicalContent"`
}

// Eligible reports whether a file participates in cross-repo scanning.
func Eligible(path string, size int) bool {
	if size > MaxFileSize {
		return false
	}
	for _, seg := range skipSegments {
		if strings.Contains(path, seg) {
			return false
		}
	}
	return true
}

// extension returns the lowercased last .-separated path segment, or ""
// when the path has no extension.
func extension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[idx+1:])
}

// fingerprinted pairs a file path with its computed fingerprint.
type fingerprinted struct {
	path string
	ext  string
	fp   *Fingerprint
}

// CrossCompare fingerprints every eligible file once per repo and returns
// all cross-repository pairs with matching extensions whose similarity is
// at or above threshold, sorted by similarity descending with
// (repoA, repoB, pathA, pathB) as a stable tiebreak.
//
// The optional cache short-circuits fingerprint computation for content
// already seen in earlier cycles; pass nil to disable.
func CrossCompare(repos []Repo, threshold float64, cache *Cache) []Match {
	prints := make([][]fingerprinted, len(repos))
	for i, repo := range repos {
		for _, f := range repo.Files {
			if !Eligible(f.Path, len(f.Content)) {
				continue
			}
			prints[i] = append(prints[i], fingerprinted{
				path: f.Path,
				ext:  extension(f.Path),
				fp:   fingerprintCached(f.Content, cache),
			})
		}
	}

	var matches []Match
	for i := 0; i < len(repos); i++ {
		for j := i + 1; j < len(repos); j++ {
			for _, fa := range prints[i] {
				for _, fb := range prints[j] {
					if fa.ext != fb.ext {
						continue
					}
					sim := Similarity(fa.fp, fb.fp)
					if sim < threshold {
						continue
					}
					matches = append(matches, Match{
						RepoA:            repos[i].Key,
						RepoB:            repos[j].Key,
						PathA:            fa.path,
						PathB:            fb.path,
						Similarity:       sim,
						IdenticalContent: fa.fp.Digest == fb.fp.Digest,
					})
				}
			}
		}
	}

	sort.Slice(matches, func(a, b int) bool {
		ma, mb := matches[a], matches[b]
		if ma.Similarity != mb.Similarity {
			return ma.Similarity > mb.Similarity
		}
		if ma.RepoA != mb.RepoA {
			return ma.RepoA < mb.RepoA
		}
		if ma.RepoB != mb.RepoB {
			return ma.RepoB < mb.RepoB
		}
		if ma.PathA != mb.PathA {
			return ma.PathA < mb.PathA
		}
		return ma.PathB < mb.PathB
	})

	return matches
}

// fingerprintCached consults the cache before computing a fingerprint.
func fingerprintCached(content string, cache *Cache) *Fingerprint {
	if cache == nil {
		return New(content)
	}
	if fp, ok := cache.Get(content); ok {
		return fp
	}
	fp := New(content)
	cache.Put(content, fp)
	return fp
}
