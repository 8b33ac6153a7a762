package utils

import (
	"regexp"
	"strconv"
	"strings"
)

// ReleaseInfo holds the quality signals extracted from a release title
type ReleaseInfo struct {
	Resolution string // 2160p, 1080p, 720p, 480p
	Source     string // remux, bluray, web-dl, webrip, hdtv, dvd
	Codec      string // x265, x264, av1, xvid
	Group      string
	Score      int
}

var (
	resolutionRegex = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|480p)\b`)
	groupRegex      = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
	yearRegex       = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// sourceTokens maps title substrings to the normalized source label, checked
// in priority order (remux titles usually also contain "bluray")
var sourceTokens = []struct {
	token  string
	source string
}{
	{"remux", "remux"},
	{"bluray", "bluray"},
	{"blu-ray", "bluray"},
	{"web-dl", "web-dl"},
	{"webdl", "web-dl"},
	{"web dl", "web-dl"},
	{"webrip", "webrip"},
	{"hdtv", "hdtv"},
	{"dvdrip", "dvd"},
	{"dvd", "dvd"},
}

var codecTokens = []struct {
	token string
	codec string
}{
	{"x265", "x265"},
	{"h265", "x265"},
	{"h.265", "x265"},
	{"hevc", "x265"},
	{"av1", "av1"},
	{"x264", "x264"},
	{"h264", "x264"},
	{"h.264", "x264"},
	{"xvid", "xvid"},
}

// ParseReleaseTitle extracts resolution, source, codec, release group and a
// numeric quality score from a release title. Signals it cannot find are left
// empty; the score only counts what was found.
func ParseReleaseTitle(title string) ReleaseInfo {
	info := ReleaseInfo{}
	lower := strings.ToLower(title)

	if m := resolutionRegex.FindString(title); m != "" {
		info.Resolution = strings.ToLower(m)
	}

	for _, st := range sourceTokens {
		if strings.Contains(lower, st.token) {
			info.Source = st.source
			break
		}
	}

	for _, ct := range codecTokens {
		if strings.Contains(lower, ct.token) {
			info.Codec = ct.codec
			break
		}
	}

	if m := groupRegex.FindStringSubmatch(strings.TrimSpace(title)); len(m) > 1 {
		info.Group = m[1]
	}

	info.Score = scoreRelease(info)
	return info
}

// scoreRelease assigns a comparable quality score: resolution dominates,
// source breaks ties, codec nudges
func scoreRelease(info ReleaseInfo) int {
	score := 0

	switch info.Resolution {
	case "2160p":
		score += 400
	case "1080p":
		score += 300
	case "720p":
		score += 200
	case "480p":
		score += 100
	}

	switch info.Source {
	case "remux":
		score += 60
	case "bluray":
		score += 50
	case "web-dl":
		score += 40
	case "webrip":
		score += 30
	case "hdtv":
		score += 20
	case "dvd":
		score += 10
	}

	switch info.Codec {
	case "av1", "x265":
		score += 5
	case "x264":
		score += 3
	case "xvid":
		score += 1
	}

	return score
}

// ExtractYear extracts a 4-digit year from a title.
// Returns 0 if no year is found.
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}

var yearSuffixRegex = regexp.MustCompile(`\s*\((19\d{2}|20\d{2})\)\s*$`)

// NormalizeTitle lowercases a display title and strips a trailing " (YYYY)"
// suffix, for exact-match lookups against the library
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(yearSuffixRegex.ReplaceAllString(title, "")))
}
