package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"feedcaster/internal/config"
	"feedcaster/internal/services"
)

// ErrNotFound reports a feed document that does not exist yet.
var ErrNotFound = errors.New("object not found")

const (
	audioContentType = "audio/mpeg"
	feedContentType  = "application/rss+xml"
)

// Destination stores episode audio.
type Destination interface {
	// Put stores size bytes from r under name and returns the URI listeners
	// download from.
	Put(ctx context.Context, name string, r io.Reader, size int64) (string, error)
}

// FeedHost reads and replaces a show's feed document.
type FeedHost interface {
	// Get returns the current document, or ErrNotFound.
	Get(ctx context.Context) ([]byte, error)
	// Put replaces the document in one write.
	Put(ctx context.Context, data []byte) error
}

// Backends bundles the storage collaborators of one show. Mirror is nil
// unless the show configures a secondary feed host.
type Backends struct {
	Destination Destination
	Feed        FeedHost
	Mirror      FeedHost
}

// Open builds the storage backends configured for show. Failures are
// configuration errors scoped to that show.
func Open(ctx context.Context, show config.Show, httpClient *http.Client) (Backends, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dest, err := openDestination(ctx, show.Storage)
	if err != nil {
		return Backends{}, services.Wrap(services.ErrConfiguration, "storage", "open destination", show.ID, err)
	}
	feed, err := openFeedHost(ctx, show.Feed, httpClient)
	if err != nil {
		return Backends{}, services.Wrap(services.ErrConfiguration, "storage", "open feed host", show.ID, err)
	}
	backends := Backends{Destination: dest, Feed: feed}
	if show.Mirror.Enabled() {
		if backends.Mirror, err = openFeedHost(ctx, show.Mirror, httpClient); err != nil {
			return Backends{}, services.Wrap(services.ErrConfiguration, "storage", "open feed mirror", show.ID, err)
		}
	}
	return backends, nil
}

func openDestination(ctx context.Context, st config.Storage) (Destination, error) {
	switch st.Backend {
	case config.BackendLocal:
		return NewLocalDir(st.Dir, st.PublicBaseURL)
	case config.BackendS3:
		client, err := NewS3Client(ctx, S3Options{Region: st.Region, Profile: st.Profile, UsePathStyle: st.UsePathStyle})
		if err != nil {
			return nil, err
		}
		return NewS3Destination(client, st.Bucket, st.Prefix, st.PublicBaseURL, st.Region), nil
	case config.BackendDrive:
		api, err := NewDriveAPI(ctx, st.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewDriveDestination(api, st.FolderID), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", st.Backend)
	}
}

func openFeedHost(ctx context.Context, fh config.FeedHost, httpClient *http.Client) (FeedHost, error) {
	switch fh.Backend {
	case config.BackendLocal:
		return NewLocalFeed(fh.Path), nil
	case config.BackendS3:
		client, err := NewS3Client(ctx, S3Options{Region: fh.Region, Profile: fh.Profile, UsePathStyle: fh.UsePathStyle})
		if err != nil {
			return nil, err
		}
		return NewS3Feed(client, fh.Bucket, fh.Key), nil
	case config.BackendDrive:
		api, err := NewDriveAPI(ctx, fh.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewDriveFeed(api, fh.FileID), nil
	case config.BackendGist:
		return NewGistFeed(httpClient, fh.APIBaseURL, fh.Token, fh.GistID, fh.Filename)
	default:
		return nil, fmt.Errorf("unsupported feed backend %q", fh.Backend)
	}
}

// objectKey joins a key prefix and a file name.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// classifyStatus maps an HTTP status from a storage API to the error taxonomy.
// Throttling, timeouts and server errors are retryable; other failures are not.
func classifyStatus(status int, op string, err error) error {
	wrapped := services.Wrap(services.ErrService, "storage", op, fmt.Sprintf("status %d", status), err)
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return services.Transient(wrapped)
	}
	return wrapped
}

// classifyTransport wraps an error that carried no HTTP status.
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return services.Transient(services.Wrap(services.ErrService, "storage", op, "request failed", err))
}
