package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dmarwaha/release-relay/pkg/models"
)

const (
	defaultAPIBase = "https://api.github.com"
	assetsPerPage  = 100
)

var tracer = otel.Tracer("relay-store")

// GitHubStore keeps assets attached to a single release, addressed by tag.
type GitHubStore struct {
	token   string
	repo    string
	tag     string
	apiBase string
	client  *http.Client

	mu        sync.Mutex
	releaseID int64
	uploadURL string
}

func NewGitHub(token, repo, tag string) *GitHubStore {
	return &GitHubStore{
		token:   token,
		repo:    repo,
		tag:     tag,
		apiBase: defaultAPIBase,
		// No overall timeout: uploads of multi-gigabyte assets run for
		// as long as the context allows.
		client: &http.Client{},
	}
}

// WithBaseURL points the client at an alternate API endpoint. Used by
// tests against a local server.
func (s *GitHubStore) WithBaseURL(base string) *GitHubStore {
	s.apiBase = strings.TrimRight(base, "/")
	return s
}

type releaseInfo struct {
	ID        int64  `json:"id"`
	UploadURL string `json:"upload_url"`
}

// release resolves and caches the target release for the configured tag.
func (s *GitHubStore) release(ctx context.Context) (releaseInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.releaseID != 0 {
		return releaseInfo{ID: s.releaseID, UploadURL: s.uploadURL}, nil
	}

	rel, err := s.fetchRelease(ctx)
	if err != nil {
		return releaseInfo{}, err
	}
	s.releaseID = rel.ID
	s.uploadURL = rel.UploadURL
	return rel, nil
}

func (s *GitHubStore) fetchRelease(ctx context.Context) (releaseInfo, error) {
	u := fmt.Sprintf("%s/repos/%s/releases/tags/%s", s.apiBase, s.repo, s.tag)
	resp, err := s.apiGet(ctx, u)
	if err != nil {
		return releaseInfo{}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return releaseInfo{}, fmt.Errorf("%w: release %q not found in %s", models.ErrStoreUnavailable, s.tag, s.repo)
	}
	if resp.StatusCode != http.StatusOK {
		return releaseInfo{}, fmt.Errorf("%w: HTTP %d resolving release %q", models.ErrStoreUnavailable, resp.StatusCode, s.tag)
	}

	var rel releaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return releaseInfo{}, fmt.Errorf("%w: decoding release: %v", models.ErrStoreUnavailable, err)
	}
	// The upload URL arrives as a URI template ending in {?name,label}.
	if i := strings.Index(rel.UploadURL, "{"); i >= 0 {
		rel.UploadURL = rel.UploadURL[:i]
	}
	return rel, nil
}

func (s *GitHubStore) List(ctx context.Context) ([]models.AssetInfo, error) {
	rel, err := s.release(ctx)
	if err != nil {
		return nil, err
	}

	var all []models.AssetInfo
	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/repos/%s/releases/%d/assets?per_page=%d&page=%d",
			s.apiBase, s.repo, rel.ID, assetsPerPage, page)
		resp, err := s.apiGet(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: HTTP %d listing assets", models.ErrStoreUnavailable, resp.StatusCode)
		}

		var batch []models.AssetInfo
		err = json.NewDecoder(resp.Body).Decode(&batch)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decoding assets: %v", models.ErrStoreUnavailable, err)
		}

		all = append(all, batch...)
		if len(batch) < assetsPerPage {
			return all, nil
		}
	}
}

func (s *GitHubStore) Delete(ctx context.Context, assetName string) error {
	assets, err := s.List(ctx)
	if err != nil {
		return err
	}

	for _, a := range assets {
		if a.Name != assetName {
			continue
		}
		u := fmt.Sprintf("%s/repos/%s/releases/assets/%d", s.apiBase, s.repo, a.ID)
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
		if err != nil {
			return err
		}
		s.setHeaders(req)
		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("%w: HTTP %d deleting asset %q", models.ErrStoreUnavailable, resp.StatusCode, assetName)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrAssetNotFound, assetName)
}

func (s *GitHubStore) Upload(ctx context.Context, localPath, assetName string, onProgress ProgressFunc, cancel CancelCheck) (models.AssetInfo, error) {
	ctx, span := tracer.Start(ctx, "store.upload")
	defer span.End()
	span.SetAttributes(attribute.String("asset.name", assetName))

	rel, err := s.release(ctx)
	if err != nil {
		return models.AssetInfo{}, err
	}

	// Same-name uploads replace the previous asset.
	if err := s.Delete(ctx, assetName); err != nil && !errors.Is(err, models.ErrAssetNotFound) {
		return models.AssetInfo{}, err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: opening %s: %v", models.ErrUploadFailed, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	size := info.Size()
	span.SetAttributes(attribute.Int64("asset.size_bytes", size))

	body := &progressReader{f: f, total: size, onProgress: onProgress, cancel: cancel}
	u := rel.UploadURL + "?name=" + url.QueryEscape(assetName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size

	resp, err := s.client.Do(req)
	if err != nil {
		if cancel != nil {
			if cerr := cancel(); cerr != nil {
				return models.AssetInfo{}, cerr
			}
		}
		return models.AssetInfo{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.AssetInfo{}, fmt.Errorf("%w: HTTP %d: %s", models.ErrUploadFailed, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var asset models.AssetInfo
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: decoding response: %v", models.ErrUploadFailed, err)
	}
	return asset, nil
}

// Rename re-stages the asset locally under a new name, since release
// assets cannot be renamed in place.
func (s *GitHubStore) Rename(ctx context.Context, oldName, newName string) (models.AssetInfo, error) {
	ctx, span := tracer.Start(ctx, "store.rename")
	defer span.End()
	span.SetAttributes(
		attribute.String("asset.old_name", oldName),
		attribute.String("asset.new_name", newName),
	)

	assets, err := s.List(ctx)
	if err != nil {
		return models.AssetInfo{}, err
	}
	var old *models.AssetInfo
	for i := range assets {
		if assets[i].Name == oldName {
			old = &assets[i]
			break
		}
	}
	if old == nil {
		return models.AssetInfo{}, fmt.Errorf("%w: %s", models.ErrAssetNotFound, oldName)
	}

	tmp, err := os.CreateTemp("", "rename-*")
	if err != nil {
		return models.AssetInfo{}, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := s.downloadAsset(ctx, old.ID, tmp); err != nil {
		tmp.Close()
		return models.AssetInfo{}, err
	}
	if err := tmp.Close(); err != nil {
		return models.AssetInfo{}, err
	}

	renamed, err := s.Upload(ctx, tmpPath, newName, nil, nil)
	if err != nil {
		return models.AssetInfo{}, err
	}
	if err := s.Delete(ctx, oldName); err != nil {
		return models.AssetInfo{}, err
	}
	return renamed, nil
}

func (s *GitHubStore) downloadAsset(ctx context.Context, assetID int64, dst io.Writer) error {
	u := fmt.Sprintf("%s/repos/%s/releases/assets/%d", s.apiBase, s.repo, assetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d downloading asset", models.ErrDownloadFailed, resp.StatusCode)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDownloadFailed, err)
	}
	return nil
}

// Ping verifies the release is reachable, bypassing the cached resolution.
func (s *GitHubStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.fetchRelease(ctx)
	return err
}

func (s *GitHubStore) apiGet(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)
	return s.client.Do(req)
}

func (s *GitHubStore) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
