package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// pexelsSearcher queries the Pexels photo API and downloads the top
// hit's large rendition into the asset cache.
type pexelsSearcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   *AssetCache
}

func NewPexelsSearcher(apiKey string, cache *AssetCache) ImageSearcher {
	return &pexelsSearcher{
		apiKey:  apiKey,
		baseURL: "https://api.pexels.com/v1",
		client:  http.DefaultClient,
		cache:   cache,
	}
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Large string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

func (p *pexelsSearcher) SearchImage(ctx context.Context, query string) (Asset, error) {
	endpoint := fmt.Sprintf("%s/search?query=%s&per_page=1", p.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Asset{}, err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("pexels search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Asset{}, fmt.Errorf("pexels returned status %s", resp.Status)
	}

	var parsed pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Asset{}, fmt.Errorf("decode pexels response: %w", err)
	}
	if len(parsed.Photos) == 0 || parsed.Photos[0].Src.Large == "" {
		return Asset{}, ErrNotFound
	}

	path, err := p.download(ctx, parsed.Photos[0].Src.Large, ".jpg")
	if err != nil {
		return Asset{}, err
	}
	return Asset{Path: path, Kind: "image"}, nil
}

func (p *pexelsSearcher) download(ctx context.Context, imageURL, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("image download returned status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}
	return p.cache.Put(data, ext)
}
