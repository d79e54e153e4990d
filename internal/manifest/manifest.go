// Package manifest parses batch transfer manifests and renders their
// result files. A manifest is plain text, one transfer per line in
// "filename : url" form; # starts a comment and a bare URL derives its
// filename from the URL path.
package manifest

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmarwaha/release-relay/pkg/models"
)

// Parse splits content into batch entries. Lines that cannot be parsed
// are returned as ErrInvalidManifestEntry problems carrying the line
// number; parsing continues past them.
func Parse(content string) ([]models.BatchEntry, []error) {
	var entries []models.BatchEntry
	var problems []error

	for i, line := range strings.Split(strings.TrimSpace(content), "\n") {
		lineNum := i + 1
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// A bare URL names itself after its path.
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			entries = append(entries, models.BatchEntry{
				Filename: deriveFilename(line),
				URL:      line,
				Line:     lineNum,
			})
			continue
		}

		// Split on the first colon only; the URL side contains its own.
		name, rawURL, found := strings.Cut(line, ":")
		if !found {
			problems = append(problems, fmt.Errorf("%w: line %d has no separator", models.ErrInvalidManifestEntry, lineNum))
			continue
		}
		name = strings.TrimSpace(name)
		rawURL = strings.TrimSpace(rawURL)
		if name == "" || rawURL == "" {
			problems = append(problems, fmt.Errorf("%w: line %d has an empty filename or URL", models.ErrInvalidManifestEntry, lineNum))
			continue
		}
		entries = append(entries, models.BatchEntry{Filename: name, URL: rawURL, Line: lineNum})
	}
	return entries, problems
}

// EntryKind classifies a batch entry by extension: HLS playlists are
// assembled, everything else downloads directly.
func EntryKind(entry models.BatchEntry) models.SourceKind {
	switch Extension(entry.URL, entry.Filename) {
	case "m3u8", "m3u":
		return models.KindHLSStream
	default:
		return models.KindHTTPURL
	}
}

// Extension returns the lower-cased extension of the filename, falling
// back to the URL path, or "" when neither carries one.
func Extension(rawURL, filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		return strings.ToLower(filename[i+1:])
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if i := strings.LastIndex(base, "."); i >= 0 && i < len(base)-1 {
		return strings.ToLower(base[i+1:])
	}
	return ""
}

func deriveFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "file"
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "file"
	}
	return base
}

// Result records the outcome of one batch entry.
type Result struct {
	Entry     models.BatchEntry
	PublicURL string
	Err       error
}

// ResultsFilename returns a unique name for a batch results file.
func ResultsFilename() string {
	return fmt.Sprintf("upload_results_%s.txt", uuid.NewString()[:8])
}

// ResultsFile renders the batch outcome back into manifest form, so the
// output can itself be re-fed as a manifest: successes as "name : url"
// lines, failures as comments.
func ResultsFile(sourceName string, results []Result, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Upload results for %s\n", sourceName)
	fmt.Fprintf(&sb, "# Generated: %s\n", now.UTC().Format(time.RFC3339))

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&sb, "# FAILED: %s - %v\n", r.Entry.Filename, r.Err)
			continue
		}
		fmt.Fprintf(&sb, "%s : %s\n", r.Entry.Filename, r.PublicURL)
	}
	return sb.String()
}

// Summary renders the chat-facing completion message for a batch. At most
// five failures are listed.
func Summary(results []Result) string {
	var succeeded, failed int
	var failures []string
	for _, r := range results {
		if r.Err != nil {
			failed++
			failures = append(failures, fmt.Sprintf("• %s: %v", r.Entry.Filename, r.Err))
		} else {
			succeeded++
		}
	}

	var sb strings.Builder
	sb.WriteString("✅ Batch Upload Complete!\n\n")
	fmt.Fprintf(&sb, "📊 Results: %d successful, %d failed\n", succeeded, failed)

	if failed > 0 {
		sb.WriteString("\n❌ Failed uploads:\n")
		shown := failures
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, f := range shown {
			sb.WriteString(f)
			sb.WriteString("\n")
		}
		if len(failures) > 5 {
			fmt.Fprintf(&sb, "... and %d more\n", len(failures)-5)
		}
	}
	return sb.String()
}
