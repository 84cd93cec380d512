package watcher

import (
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
)

var (
	// Hive account names
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9.\-]{2,15}$`)
	tagPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,31}$`)
	trxIdPattern    = regexp.MustCompile(`^[0-9a-f]{8,64}$`)

	// References inside message content. A reference starts after a whitespace or punctuation.
	contentMentionPattern = regexp.MustCompile(`(?:^|[^a-z0-9_.\-])@([a-z0-9][a-z0-9.\-]*)`)
	contentTagPattern     = regexp.MustCompile(`(?:^|[^a-z0-9_&])#([a-z0-9][a-z0-9\-]*)`)
)

func NormalizeUsername(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimRight(s, ".-")
	return s, usernamePattern.MatchString(s)
}

func NormalizeTag(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "#")
	s = strings.Trim(s, "-")
	return s, tagPattern.MatchString(s)
}

func IsTrxId(s string) bool {
	return trxIdPattern.MatchString(s)
}

// Normalizes every entry, drops invalid ones and duplicates. Result is sorted.
func normalizeAll(in []string, normalize func(string) (string, bool)) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s, ok := normalize(s)
		if !ok {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func NormalizeMentions(in []string) []string {
	return normalizeAll(in, NormalizeUsername)
}

func NormalizeTags(in []string) []string {
	return normalizeAll(in, NormalizeTag)
}

func submatches(pattern *regexp.Regexp, content string) (out []string) {
	for _, m := range pattern.FindAllStringSubmatch(strings.ToLower(content), -1) {
		out = append(out, m[1])
	}
	return
}

func MentionsFromContent(content string) []string {
	return NormalizeMentions(submatches(contentMentionPattern, content))
}

func TagsFromContent(content string) []string {
	return NormalizeTags(submatches(contentTagPattern, content))
}
