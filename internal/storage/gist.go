package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GistFeed keeps the feed document as one file of a GitHub Gist. Podcast
// clients subscribe to the file's raw URL.
type GistFeed struct {
	client   *github.Client
	http     *http.Client
	gistID   string
	filename string
}

// NewGistFeed returns a feed host for gistID. apiBaseURL may point at a
// GitHub Enterprise or test server; empty uses api.github.com.
func NewGistFeed(httpClient *http.Client, apiBaseURL, token, gistID, filename string) (*GistFeed, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("gist token is not configured")
	}
	if strings.TrimSpace(gistID) == "" || strings.TrimSpace(filename) == "" {
		return nil, errors.New("gist id and filename must be set")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	client := github.NewClient(httpClient).WithAuthToken(token)
	if apiBaseURL = strings.TrimSpace(apiBaseURL); apiBaseURL != "" {
		base, err := url.Parse(strings.TrimRight(apiBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse gist api base url: %w", err)
		}
		client.BaseURL = base
	}
	return &GistFeed{client: client, http: httpClient, gistID: gistID, filename: filename}, nil
}

func (g *GistFeed) Get(ctx context.Context) ([]byte, error) {
	gist, resp, err := g.client.Gists.Get(ctx, g.gistID)
	if err != nil {
		return nil, classifyGitHub("gist read", resp, err)
	}
	file, ok := gist.Files[github.GistFilename(g.filename)]
	if !ok {
		return nil, ErrNotFound
	}
	content := file.GetContent()
	if file.GetSize() > len(content) && file.GetRawURL() != "" {
		// GitHub truncates large files in the gist payload.
		return g.fetchRaw(ctx, file.GetRawURL())
	}
	return []byte(content), nil
}

func (g *GistFeed) Put(ctx context.Context, data []byte) error {
	edit := &github.Gist{
		Files: map[github.GistFilename]github.GistFile{
			github.GistFilename(g.filename): {Content: github.String(string(data))},
		},
	}
	_, resp, err := g.client.Gists.Edit(ctx, g.gistID, edit)
	if err != nil {
		return classifyGitHub("gist write", resp, err)
	}
	return nil
}

func (g *GistFeed) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build raw gist request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, classifyTransport("gist raw read", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, "gist raw read", nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport("gist raw read", err)
	}
	return data, nil
}

func classifyGitHub(op string, resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return classifyStatus(http.StatusTooManyRequests, op, err)
	}
	if resp != nil && resp.Response != nil {
		return classifyStatus(resp.StatusCode, op, err)
	}
	return classifyTransport(op, err)
}
