// Package normalize extracts the structured artifacts a prompt refers to
// before scoring fans out: network domains and filesystem paths. Engines
// read the extraction instead of re-parsing the text, so every engine
// sees the same artifacts.
package normalize

import (
	"path"
	"regexp"
	"strings"
)

// Normalized is one prompt plus everything extracted from it.
type Normalized struct {
	Raw     string
	Domains []string
	Paths   []string
}

var domainRegex = regexp.MustCompile(`https?://([^/\s'"]+)`)

// Prompt extracts domains and path-like tokens from raw text. Paths stay
// symbolic: a prompt's "~/.ssh" refers to the agent's machine, not the
// gateway's, so nothing here expands against the local filesystem.
func Prompt(raw string) Normalized {
	n := Normalized{Raw: raw}

	n.Domains = extractDomains(raw)

	for _, token := range strings.Fields(raw) {
		token = trimPromptPunctuation(token)
		if strings.HasPrefix(token, "git@") {
			if domain := extractGitDomain(token); domain != "" {
				n.Domains = append(n.Domains, domain)
			}
			continue
		}
		if looksLikePath(token) {
			n.Paths = append(n.Paths, path.Clean(token))
		}
	}

	n.Domains = uniqueStrings(n.Domains)
	n.Paths = uniqueStrings(n.Paths)
	return n
}

// trimPromptPunctuation strips the sentence punctuation prose wraps
// around a token, without touching leading "./" or "~/" markers.
func trimPromptPunctuation(token string) string {
	token = strings.TrimLeft(token, `'"([{<`)
	return strings.TrimRight(token, `'")]}>.,;:!?`)
}

func looksLikePath(token string) bool {
	if token == "" || strings.HasPrefix(token, "-") {
		return false
	}
	if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
		return false
	}
	return strings.HasPrefix(token, "/") ||
		strings.HasPrefix(token, "./") ||
		strings.HasPrefix(token, "../") ||
		strings.HasPrefix(token, "~/") ||
		strings.Contains(token, "/")
}

func extractDomains(s string) []string {
	matches := domainRegex.FindAllStringSubmatch(s, -1)
	domains := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) > 1 {
			domains = append(domains, strings.ToLower(match[1]))
		}
	}
	return domains
}

// extractGitDomain pulls the host out of an SSH-form clone URL like
// git@github.com:org/repo.git.
func extractGitDomain(repoURL string) string {
	host, _, found := strings.Cut(strings.TrimPrefix(repoURL, "git@"), ":")
	if found && host != "" {
		return strings.ToLower(host)
	}
	return ""
}

func uniqueStrings(input []string) []string {
	seen := make(map[string]bool, len(input))
	result := make([]string, 0, len(input))
	for _, s := range input {
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
