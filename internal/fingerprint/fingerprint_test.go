// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "line comments stripped",
			input:    "code(); // trailing comment\nmore()",
			expected: "code(); more()",
		},
		{
			name:     "block comments stripped",
			input:    "a /* one\ntwo */ b",
			expected: "a b",
		},
		{
			name:     "hash comments stripped",
			input:    "value = 1 # python style\nnext = 2",
			expected: "value = 1 next = 2",
		},
		{
			name:     "whitespace collapsed and lowercased",
			input:    "  Function   SUM(a,\t\tb)  ",
			expected: "function sum(a, b)",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"function sum(a,b){ return a+b; }",
		"/* header */\npackage x // done",
		"   mixed \t whitespace\n\nhere  ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestNew_NormalizationInvariant(t *testing.T) {
	src := "Function  Sum(a, b) { // add\n  return a + b;\n}"
	fa := New(src)
	fb := New(Normalize(src))

	assert.Equal(t, fa.Digest, fb.Digest)
	assert.Equal(t, fa.Set, fb.Set)
	assert.Equal(t, fa.NormalizedLength, fb.NormalizedLength)
}

func TestNew_ShortText(t *testing.T) {
	// Shorter than the k-gram size: a single hash of the whole text.
	fp := New("tiny")
	assert.Len(t, fp.Set, 1)
}

func TestSimilarity_Identity(t *testing.T) {
	fp := New("function sum(a,b){ return a+b; }")
	assert.Equal(t, 1.0, Similarity(fp, fp))
}

func TestSimilarity_Commutative(t *testing.T) {
	a := New(strings.Repeat("alpha beta gamma delta ", 10))
	b := New(strings.Repeat("alpha beta gamma omega ", 10))

	assert.Equal(t, Similarity(a, b), Similarity(b, a))
}

func TestSimilarity_EmptySets(t *testing.T) {
	empty1 := &Fingerprint{Digest: "d1", Set: map[uint32]struct{}{}}
	empty2 := &Fingerprint{Digest: "d2", Set: map[uint32]struct{}{}}
	full := &Fingerprint{Digest: "d3", Set: map[uint32]struct{}{1: {}, 2: {}}}

	assert.Equal(t, 1.0, Similarity(empty1, empty2))
	assert.Equal(t, 0.0, Similarity(empty1, full))
	assert.Equal(t, 0.0, Similarity(full, empty2))
}

func TestCompare_IdenticalContent(t *testing.T) {
	src := "function sum(a,b){ return a+b; }"
	res := Compare(src, src)

	assert.Equal(t, 1.0, res.Similarity)
	assert.True(t, res.IdenticalContent)
}

func TestCompare_WhitespaceAndCaseInsensitive(t *testing.T) {
	// Whitespace runs collapse to a single space and case folds, so
	// reformatting and re-casing cannot hide a copied file.
	res := Compare(
		"Function SUM(a, b) {\n\treturn a + b;\n}",
		"function sum(a, b) { return a + b; }",
	)

	assert.Equal(t, 1.0, res.Similarity)
	assert.True(t, res.IdenticalContent)
}

func TestCompare_DissimilarTexts(t *testing.T) {
	res := Compare(
		strings.Repeat("the quick brown fox jumps over the lazy dog ", 5),
		strings.Repeat("import collections; queue = collections.deque() ", 5),
	)

	assert.Less(t, res.Similarity, 0.5)
	assert.False(t, res.IdenticalContent)
}

func TestWinnow_DedupesConsecutiveMinima(t *testing.T) {
	// A constant sequence must collapse to a single fingerprint.
	hashes := []uint32{7, 7, 7, 7, 7, 7, 7, 7}
	set := winnow(hashes, 4)
	assert.Len(t, set, 1)
}

func TestWinnow_ShortSequence(t *testing.T) {
	set := winnow([]uint32{9, 3, 5}, 4)
	require.Len(t, set, 1)
	_, ok := set[3]
	assert.True(t, ok)
}

func TestEligible(t *testing.T) {
	tests := []struct {
		path string
		size int
		want bool
	}{
		{"src/index.js", 100, true},
		{"node_modules/pkg/index.js", 100, false},
		{"package-lock.json", 100, false},
		{"app.min.js", 100, false},
		{"vendor/lib.go", 100, false},
		{"dist/bundle.js", 100, false},
		{"src/big.js", MaxFileSize + 1, false},
		{"src/edge.js", MaxFileSize, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Eligible(tt.path, tt.size), tt.path)
	}
}

func TestCrossCompare_IdenticalFilesAcrossRepos(t *testing.T) {
	content := "function solve(n){ let acc = 0; for (let i=0;i<n;i++){ acc += i*i; } return acc; }"
	repos := []Repo{
		{Key: "alice/contest", Files: []File{{Path: "index.js", Content: content}}},
		{Key: "bob/contest", Files: []File{{Path: "index.js", Content: content}}},
	}

	matches := CrossCompare(repos, 0.8, nil)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "alice/contest", m.RepoA)
	assert.Equal(t, "bob/contest", m.RepoB)
	assert.Equal(t, 1.0, m.Similarity)
	assert.True(t, m.IdenticalContent)
}

func TestCrossCompare_ExtensionMustMatch(t *testing.T) {
	content := "function solve(n){ return n*n; } // same body either way"
	repos := []Repo{
		{Key: "a/r", Files: []File{{Path: "main.js", Content: content}}},
		{Key: "b/r", Files: []File{{Path: "main.py", Content: content}}},
	}

	matches := CrossCompare(repos, 0.5, nil)
	assert.Empty(t, matches)
}

func TestCrossCompare_SkipsIneligiblePaths(t *testing.T) {
	content := "shared content that would otherwise match exactly between both sides"
	repos := []Repo{
		{Key: "a/r", Files: []File{{Path: "node_modules/x.js", Content: content}}},
		{Key: "b/r", Files: []File{{Path: "src/x.js", Content: content}}},
	}

	matches := CrossCompare(repos, 0.5, nil)
	assert.Empty(t, matches)
}

func TestCrossCompare_SortedBySimilarityDesc(t *testing.T) {
	base := strings.Repeat("let value = compute(input) + offset; emit(value); ", 8)
	near := strings.Repeat("let value = compute(input) + offset; emit(result); ", 8)
	repos := []Repo{
		{Key: "a/r", Files: []File{
			{Path: "exact.js", Content: base},
			{Path: "near.js", Content: near},
		}},
		{Key: "b/r", Files: []File{{Path: "exact.js", Content: base}}},
	}

	matches := CrossCompare(repos, 0.1, nil)
	require.GreaterOrEqual(t, len(matches), 2)
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
	}
	assert.Equal(t, "exact.js", matches[0].PathA)
}

func TestCache_RoundTrip(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	content := "function cached(){ return 42; } // stays stable across cycles"

	_, ok := cache.Get(content)
	assert.False(t, ok)

	fp := New(content)
	cache.Put(content, fp)

	got, ok := cache.Get(content)
	require.True(t, ok)
	assert.Equal(t, fp.Digest, got.Digest)
	assert.Equal(t, fp.Set, got.Set)
	assert.Equal(t, fp.NormalizedLength, got.NormalizedLength)
}

func TestCrossCompare_UsesCache(t *testing.T) {
	cache, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	content := "function solve(n){ let acc = 0; for (let i=0;i<n;i++){ acc += i; } return acc; }"
	repos := []Repo{
		{Key: "a/r", Files: []File{{Path: "index.js", Content: content}}},
		{Key: "b/r", Files: []File{{Path: "index.js", Content: content}}},
	}

	first := CrossCompare(repos, 0.8, cache)
	second := CrossCompare(repos, 0.8, cache)

	require.Len(t, first, 1)
	assert.Equal(t, first, second)
}
