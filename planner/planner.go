// Package planner derives where a screenshot is written: a dated folder under
// the output root and a file name built from the prefix, the site's domain
// token and a second-resolution timestamp.
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "20060102_150405"
)

// compoundSLDs are second-level labels that sit under a ccTLD
// (example.co.jp, example.com.cn), where the registrable name is one label
// further left.
var compoundSLDs = map[string]struct{}{
	"co":  {},
	"com": {},
	"net": {},
	"org": {},
	"ac":  {},
	"edu": {},
	"gov": {},
}

// Plan creates outputFolder/YYYY-MM-DD if needed and returns the absolute-or-
// relative OS path of the file to write plus a display path that always uses
// forward slashes.
func Plan(outputFolder, url, prefix string, now time.Time) (fullPath, relativePath string, err error) {
	bucket := now.Format(dateLayout)
	dir := filepath.Join(outputFolder, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output directory %s: %w", dir, err)
	}

	name := Filename(url, prefix, now)
	return filepath.Join(dir, name), outputFolder + "/" + bucket + "/" + name, nil
}

// Filename returns "{prefix}{_token}_{YYYYMMDD_HHMMSS}.png".
func Filename(url, prefix string, now time.Time) string {
	return prefix + DomainToken(url) + "_" + now.Format(timestampLayout) + ".png"
}

// DomainToken returns "_" followed by the site name taken from url's host, or
// "" when url has no http(s) scheme or no usable host.
func DomainToken(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return ""
	}

	segments := strings.Split(url, "/")
	if len(segments) < 3 {
		return ""
	}
	host := strings.TrimPrefix(segments[2], "www.")

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}

	var name string
	if _, ok := compoundSLDs[labels[len(labels)-2]]; ok && len(labels) >= 3 {
		name = labels[len(labels)-3]
	} else {
		name = labels[0]
	}
	if name == "" {
		return ""
	}
	return "_" + name
}
