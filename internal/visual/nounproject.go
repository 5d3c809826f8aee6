package visual

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// nounProjectSearcher queries the Noun Project icon API (OAuth 1.0a
// signed requests) and downloads the top hit's preview.
type nounProjectSearcher struct {
	key     string
	secret  string
	baseURL string
	client  *http.Client
	cache   *AssetCache
	clock   func() time.Time
}

func NewNounProjectSearcher(key, secret string, cache *AssetCache) IconSearcher {
	return &nounProjectSearcher{
		key:     key,
		secret:  secret,
		baseURL: "https://api.thenounproject.com/v2",
		client:  http.DefaultClient,
		cache:   cache,
		clock:   time.Now,
	}
}

type nounProjectResponse struct {
	Icons []struct {
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"icons"`
}

func (n *nounProjectSearcher) SearchIcon(ctx context.Context, query string) (Asset, error) {
	endpoint := fmt.Sprintf("%s/icon", n.baseURL)
	params := url.Values{"query": {query}, "limit": {"1"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Asset{}, err
	}
	req.Header.Set("Authorization", n.authHeader(http.MethodGet, endpoint, params))

	resp, err := n.client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("noun project search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Asset{}, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return Asset{}, fmt.Errorf("noun project returned status %s", resp.Status)
	}

	var parsed nounProjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Asset{}, fmt.Errorf("decode noun project response: %w", err)
	}
	if len(parsed.Icons) == 0 || parsed.Icons[0].ThumbnailURL == "" {
		return Asset{}, ErrNotFound
	}

	path, err := n.download(ctx, parsed.Icons[0].ThumbnailURL)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Path: path, Kind: "icon"}, nil
}

func (n *nounProjectSearcher) download(ctx context.Context, iconURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download icon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("icon download returned status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read icon body: %w", err)
	}
	return n.cache.Put(data, ".png")
}

// authHeader builds an OAuth 1.0a HMAC-SHA1 Authorization header.
func (n *nounProjectSearcher) authHeader(method, endpoint string, params url.Values) string {
	oauth := map[string]string{
		"oauth_consumer_key":     n.key,
		"oauth_nonce":            nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        fmt.Sprintf("%d", n.clock().Unix()),
		"oauth_version":          "1.0",
	}

	all := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			all.Add(k, v)
		}
	}
	for k, v := range oauth {
		all.Set(k, v)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []string
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(all.Get(k)))
	}

	base := strings.Join([]string{
		method,
		percentEncode(endpoint),
		percentEncode(strings.Join(pairs, "&")),
	}, "&")

	mac := hmac.New(sha1.New, []byte(percentEncode(n.secret)+"&"))
	mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	var header []string
	for _, k := range []string{"oauth_consumer_key", "oauth_nonce", "oauth_signature", "oauth_signature_method", "oauth_timestamp", "oauth_version"} {
		header = append(header, fmt.Sprintf(`%s="%s"`, k, percentEncode(oauth[k])))
	}
	return "OAuth " + strings.Join(header, ", ")
}

func percentEncode(s string) string {
	return strings.NewReplacer("+", "%20", "*", "%2A", "%7E", "~").Replace(url.QueryEscape(s))
}

func nonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
