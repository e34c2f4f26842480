package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveDownloadURL = "https://docs.google.com/uc?export=download&id="

// DriveAPI is the set of Drive file operations the backends need.
type DriveAPI interface {
	Create(ctx context.Context, name, parent, mimeType string, r io.Reader) (string, error)
	ShareAnyone(ctx context.Context, fileID string) error
	Update(ctx context.Context, fileID, mimeType string, r io.Reader) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// NewDriveAPI authenticates with a service account key file.
func NewDriveAPI(ctx context.Context, credentialsFile string) (DriveAPI, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		return nil, errors.New("drive credentials file is not configured")
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	jwt, err := google.JWTConfigFromJSON(data, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &driveService{svc: svc}, nil
}

type driveService struct {
	svc *drive.Service
}

func (d *driveService) Create(ctx context.Context, name, parent, mimeType string, r io.Reader) (string, error) {
	meta := &drive.File{Name: name, MimeType: mimeType}
	if parent != "" {
		meta.Parents = []string{parent}
	}
	f, err := d.svc.Files.Create(meta).
		Media(r, googleapi.ContentType(mimeType)).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

func (d *driveService) ShareAnyone(ctx context.Context, fileID string) error {
	_, err := d.svc.Permissions.Create(fileID, &drive.Permission{Type: "anyone", Role: "reader"}).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func (d *driveService) Update(ctx context.Context, fileID, mimeType string, r io.Reader) error {
	_, err := d.svc.Files.Update(fileID, &drive.File{}).
		Media(r, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func (d *driveService) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// DriveDestination uploads audio into a folder and shares each file publicly.
type DriveDestination struct {
	api    DriveAPI
	folder string
}

func NewDriveDestination(api DriveAPI, folderID string) *DriveDestination {
	return &DriveDestination{api: api, folder: folderID}
}

// Put uploads the file, grants anyone-with-link read access, and returns the
// direct download URI. size is advisory; Drive streams the reader.
func (d *DriveDestination) Put(ctx context.Context, name string, r io.Reader, _ int64) (string, error) {
	id, err := d.api.Create(ctx, name, d.folder, audioContentType, r)
	if err != nil {
		return "", classifyDrive("drive upload", err)
	}
	if err := d.api.ShareAnyone(ctx, id); err != nil {
		return "", classifyDrive("drive share", err)
	}
	return DriveDownloadURI(id), nil
}

// DriveDownloadURI is the direct download link for a shared file.
func DriveDownloadURI(fileID string) string {
	return driveDownloadURL + fileID
}

// DriveFeed keeps the feed document in an existing Drive file.
type DriveFeed struct {
	api    DriveAPI
	fileID string
}

func NewDriveFeed(api DriveAPI, fileID string) *DriveFeed {
	return &DriveFeed{api: api, fileID: fileID}
}

func (f *DriveFeed) Get(ctx context.Context) ([]byte, error) {
	data, err := f.api.Download(ctx, f.fileID)
	if err != nil {
		if isDriveNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, classifyDrive("drive feed read", err)
	}
	return data, nil
}

func (f *DriveFeed) Put(ctx context.Context, data []byte) error {
	if err := f.api.Update(ctx, f.fileID, feedContentType, bytes.NewReader(data)); err != nil {
		return classifyDrive("drive feed write", err)
	}
	return nil
}

func isDriveNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func classifyDrive(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusForbidden && isRateLimitReason(gerr) {
			return classifyStatus(http.StatusTooManyRequests, op, err)
		}
		return classifyStatus(gerr.Code, op, err)
	}
	return classifyTransport(op, err)
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
