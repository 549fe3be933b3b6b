package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/nearby-sync/internal/directory"
)

const (
	// DefaultRPCTimeout bounds each directory RPC made by a download
	DefaultRPCTimeout = 60 * time.Second
	// DefaultPageSize is the number of contact records requested per page
	DefaultPageSize = 500
)

// DownloaderOption configures a directory downloader
type DownloaderOption func(*directoryDownloader)

// WithRPCTimeout bounds each RPC of a download
func WithRPCTimeout(timeout time.Duration) DownloaderOption {
	return func(d *directoryDownloader) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithPageSize sets the number of contact records requested per page
func WithPageSize(size int) DownloaderOption {
	return func(d *directoryDownloader) {
		if size > 0 {
			d.pageSize = size
		}
	}
}

type directoryDownloader struct {
	client   directory.Client
	deviceID string
	timeout  time.Duration
	pageSize int
}

// NewDownloader creates a Downloader that pages through the directory's
// contact records for deviceID
func NewDownloader(client directory.Client, deviceID string, opts ...DownloaderOption) Downloader {
	d := &directoryDownloader{
		client:   client,
		deviceID: deviceID,
		timeout:  DefaultRPCTimeout,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *directoryDownloader) Download(ctx context.Context, onlyIfChanged bool) (*DownloadResult, error) {
	slog.Debug("Starting contacts download", "only_if_changed", onlyIfChanged)

	changed, err := d.checkContactsChanged(ctx)
	if err != nil {
		return nil, &Error{
			Err:     err,
			Message: fmt.Sprintf("contact-change check failed: %v", err),
			Stage:   StageContactChangeCheck,
		}
	}

	if onlyIfChanged && !changed {
		slog.Debug("Contacts did not change, no download needed")
		return &DownloadResult{ChangedSinceLastUpload: false}, nil
	}

	var (
		records   []directory.ContactRecord
		pageToken string
		page      int
	)
	for {
		page++
		resp, err := d.listPage(ctx, pageToken)
		if err != nil {
			return nil, &Error{
				Err:     err,
				Message: fmt.Sprintf("contact download failed on page %d: %v", page, err),
				Stage:   StageListContactPeople,
				Page:    page,
			}
		}
		records = append(records, resp.ContactRecords...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	slog.Debug("Contacts download succeeded",
		"contacts", len(records),
		"pages", page,
		"changed_since_last_upload", changed)

	return &DownloadResult{
		ChangedSinceLastUpload: changed,
		FullList:               true,
		Contacts:               records,
	}, nil
}

func (d *directoryDownloader) checkContactsChanged(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	changed, err := d.client.CheckContactsChanged(ctx, d.deviceID)
	return changed, asTimeout(ctx, err)
}

func (d *directoryDownloader) listPage(ctx context.Context, pageToken string) (*directory.ListContactPeopleResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.ListContactPeople(ctx, directory.ListContactPeopleRequest{
		Parent:    directory.DeviceParent(d.deviceID),
		PageSize:  d.pageSize,
		PageToken: pageToken,
	})
	if err != nil {
		return nil, asTimeout(ctx, err)
	}
	return resp, nil
}

// asTimeout reports RPCs that ran past their deadline as directory.ErrTimeout
func asTimeout(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, directory.ErrTimeout) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", directory.ErrTimeout, err)
	}
	return err
}
