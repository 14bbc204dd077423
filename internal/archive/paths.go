package archive

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// DateLayout formats run dates as YYYY-MM-DD.
const DateLayout = "2006-01-02"

// RunDate formats t as a run date.
func RunDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DestinationPath returns <outputRoot>/<websiteID>/<runDate>.
func DestinationPath(outputRoot, websiteID, runDate string) (string, error) {
	if !isPathElement(websiteID) {
		return "", fmt.Errorf("%w: website id %q is not a valid directory name", ErrPathDerivation, websiteID)
	}
	if !isPathElement(runDate) {
		return "", fmt.Errorf("%w: run date %q is not a valid directory name", ErrPathDerivation, runDate)
	}
	return filepath.Join(outputRoot, websiteID, runDate), nil
}

// JobWorkDir returns <workDir>/<runID>/<websiteID>, the private directory one job's archive
// program runs in.
func JobWorkDir(workDir, runID, websiteID string) (string, error) {
	if !isPathElement(runID) {
		return "", fmt.Errorf("%w: run id %q is not a valid directory name", ErrPathDerivation, runID)
	}
	if !isPathElement(websiteID) {
		return "", fmt.Errorf("%w: website id %q is not a valid directory name", ErrPathDerivation, websiteID)
	}
	return filepath.Join(workDir, runID, websiteID), nil
}

// SourcePath returns where the archiving program is expected to have written its output for
// resolved, following the host-directory convention of recursive downloaders: <workDir>/<host>,
// optionally followed by the URL's path segments.
func SourcePath(workDir string, resolved *url.URL, includeSegments bool) (string, error) {
	if resolved == nil {
		return "", fmt.Errorf("%w: no resolved url", ErrPathDerivation)
	}
	host := resolved.Host
	if !isPathElement(host) {
		return "", fmt.Errorf("%w: url %q has no usable host", ErrPathDerivation, resolved.String())
	}
	parts := []string{workDir, host}
	if includeSegments {
		for _, seg := range strings.Split(resolved.Path, "/") {
			if seg == "" {
				continue
			}
			if !isPathElement(seg) {
				return "", fmt.Errorf("%w: url %q has unsafe path segment %q", ErrPathDerivation, resolved.String(), seg)
			}
			parts = append(parts, seg)
		}
	}
	return filepath.Join(parts...), nil
}

func isPathElement(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}
