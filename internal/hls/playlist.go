// Package hls assembles a single media file from an HTTP Live Streaming
// playlist: it resolves the master playlist's quality variants, picks one,
// and concatenates the variant's segments in order.
package hls

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	resolutionRe = regexp.MustCompile(`RESOLUTION=(\d+)x(\d+)`)
	bandwidthRe  = regexp.MustCompile(`BANDWIDTH=(\d+)`)
)

// Variant is one quality option from a master playlist.
type Variant struct {
	Name      string // "720p", or "Quality N" when no resolution is given
	Height    int
	Bandwidth int
	URL       string
}

// IsPlaylist reports whether content looks like an m3u8 playlist.
func IsPlaylist(content string) bool {
	for _, sig := range []string{
		"#EXTM3U",
		"#EXT-X-VERSION",
		"#EXT-X-STREAM-INF",
		"#EXT-X-TARGETDURATION",
		"#EXTINF",
	} {
		if strings.Contains(content, sig) {
			return true
		}
	}
	return false
}

// IsMaster reports whether content is a master playlist with variants.
func IsMaster(content string) bool {
	return strings.Contains(content, "#EXT-X-STREAM-INF:")
}

// ParseMaster extracts the quality variants of a master playlist, highest
// bandwidth first. Relative variant URLs are resolved against baseURL.
func ParseMaster(content, baseURL string) []Variant {
	var variants []Variant
	lines := strings.Split(strings.TrimSpace(content), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			continue
		}
		if i+1 >= len(lines) {
			break
		}

		v := Variant{URL: resolveURL(baseURL, strings.TrimSpace(lines[i+1]))}
		if m := bandwidthRe.FindStringSubmatch(line); m != nil {
			v.Bandwidth, _ = strconv.Atoi(m[1])
		}
		if m := resolutionRe.FindStringSubmatch(line); m != nil {
			v.Height, _ = strconv.Atoi(m[2])
			v.Name = fmt.Sprintf("%dp", v.Height)
		} else {
			v.Name = fmt.Sprintf("Quality %d", len(variants)+1)
		}
		variants = append(variants, v)
	}

	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Bandwidth > variants[j].Bandwidth
	})
	return variants
}

// ParseSegments extracts the segment URLs of a media playlist, resolving
// relative entries against baseURL.
func ParseSegments(content, baseURL string) []string {
	var segments []string
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		segments = append(segments, resolveURL(baseURL, line))
	}
	return segments
}

// SelectVariant picks the best variant at most heightHint tall, falling
// back to the highest quality when the hint is 0 or nothing fits under it.
func SelectVariant(variants []Variant, heightHint int) (Variant, error) {
	if len(variants) == 0 {
		return Variant{}, fmt.Errorf("no variants to select from")
	}
	if heightHint <= 0 {
		return variants[0], nil
	}

	best := -1
	for i, v := range variants {
		if v.Height == 0 || v.Height > heightHint {
			continue
		}
		if best == -1 || v.Height > variants[best].Height {
			best = i
		}
	}
	if best == -1 {
		return variants[0], nil
	}
	return variants[best], nil
}

func resolveURL(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}
