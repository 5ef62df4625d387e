package browser

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	urlPattern       = regexp.MustCompile(`https?://\S+`)
	domainPattern    = regexp.MustCompile(`\b([a-zA-Z0-9-]+\.(?:com|org|edu|gov|net|io|ai|co))\b`)
	localhostPattern = regexp.MustCompile(`(?i)\b(localhost|127\.0\.0\.1)(?:\s*:\s*|\s+)?(\d{2,5})?([/\w\-.?=&%+]*)`)
	quotedPattern    = regexp.MustCompile(`['"]([^'"]+)['"]`)
	pathPattern      = regexp.MustCompile(`(?:^|[^\w])(~/\S+|/\S+)`)
)

// ExtractDirectURL finds a URL embedded in task text, in priority order:
// an explicit http(s) URL, a bare domain ending in a known TLD, or a
// localhost/127.0.0.1 reference with an optional port and path. It must
// be called on the task's
// original wording, before any steering preamble is prepended, or the
// preamble text can itself produce a false match.
func ExtractDirectURL(task string) string {
	task = strings.TrimSpace(task)
	if task == "" {
		return ""
	}

	if m := urlPattern.FindString(task); m != "" {
		return strings.TrimRight(m, ".,);")
	}

	if m := domainPattern.FindStringSubmatch(task); m != nil {
		return "https://" + m[1]
	}

	if m := localhostPattern.FindStringSubmatch(task); m != nil {
		host, port, path := m[1], m[2], strings.TrimRight(strings.TrimSpace(m[3]), ".,);")
		out := "http://" + host
		if port != "" {
			out += ":" + port
		}
		if path != "" {
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			out += path
		}
		return out
	}

	return ""
}

// ExtractAvailableFilePaths scans task text for quoted tokens and
// absolute/home-relative paths, expands them, and returns every candidate
// form (expanded, absolute, raw, basename) for use as an upload whitelist.
func ExtractAvailableFilePaths(task string) []string {
	if task == "" {
		return nil
	}

	var candidates []string
	for _, m := range quotedPattern.FindAllStringSubmatch(task, -1) {
		if q := strings.TrimSpace(m[1]); q != "" {
			candidates = append(candidates, q)
		}
	}
	for _, m := range pathPattern.FindAllStringSubmatch(task, -1) {
		if p := strings.TrimSpace(m[1]); p != "" {
			candidates = append(candidates, p)
		}
	}

	seen := make(map[string]bool)
	var resolved []string
	add := func(p string) {
		p = strings.Trim(strings.TrimSpace(p), ".,;:()[]{}'\"`")
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		resolved = append(resolved, p)
	}

	for _, c := range candidates {
		if !strings.Contains(c, "/") && !strings.Contains(c, "\\") && !strings.Contains(c, "~") {
			continue
		}
		expanded := expandPath(c)
		absolute := expanded
		if a, err := filepath.Abs(expanded); err == nil {
			absolute = a
		}

		add(expanded)
		add(absolute)
		add(c)
		if base := filepath.Base(expanded); base != "" {
			add(base)
		}
	}

	return resolved
}

func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
