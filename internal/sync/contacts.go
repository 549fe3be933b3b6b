package sync

import (
	"context"
	"fmt"

	"github.com/stacklok/nearby-sync/internal/directory"
)

// UploadState tracks the single outstanding contact upload
type UploadState int

// Upload states
const (
	UploadStateIdle UploadState = iota
	UploadStateWaitingForDownload
	UploadStateInProgress
)

func (s UploadState) String() string {
	switch s {
	case UploadStateIdle:
		return "Idle"
	case UploadStateWaitingForDownload:
		return "WaitingForDownload"
	case UploadStateInProgress:
		return "InProgress"
	default:
		return fmt.Sprintf("UploadState(%d)", int(s))
	}
}

// Download stages reported in Error
const (
	StageContactChangeCheck = "contact-change-check"
	StageListContactPeople  = "list-contact-people"
	StageUpload             = "upload"
)

// Error represents a failed download or upload together with the stage it failed in
type Error struct {
	Err     error
	Message string
	Stage   string
	Page    int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DownloadResult is the outcome of a successful download
type DownloadResult struct {
	// ChangedSinceLastUpload reports whether the directory saw contact changes
	// since this device last uploaded
	ChangedSinceLastUpload bool
	// FullList is false when the download was skipped because nothing changed.
	// Contacts is only meaningful when FullList is true.
	FullList bool
	Contacts []directory.ContactRecord
}

// Downloader fetches contact records from the directory
//
//go:generate mockgen -destination=mocks/mock_downloader.go -package=mocks github.com/stacklok/nearby-sync/internal/sync Downloader,Uploader
type Downloader interface {
	// Download fetches contacts. With onlyIfChanged set and no change reported
	// by the directory, the result carries no list.
	Download(ctx context.Context, onlyIfChanged bool) (*DownloadResult, error)
}

// Uploader publishes the device's contact list
type Uploader interface {
	UploadContacts(ctx context.Context, contacts []directory.Contact) error
}

// Observer receives contact sync events. Methods run on the coordinator's sequence.
type Observer interface {
	// OnAllowlistChanged reports that contacts were added to and/or removed from the allow-list
	OnAllowlistChanged(added, removed bool)
	// OnContactsDownloaded delivers a full contact list and the reconciled allow-list
	OnContactsDownloaded(allowed []string, contacts []directory.ContactRecord)
	// OnContactsUploaded reports a successful upload
	OnContactsUploaded(changedSinceLastUpload bool)
}

// RecordsToContacts expands records into one upload item per identifier,
// marking those belonging to allowed contacts as selected
func RecordsToContacts(allowed []string, records []directory.ContactRecord) []directory.Contact {
	selected := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		selected[id] = struct{}{}
	}

	var contacts []directory.Contact
	for _, record := range records {
		_, isSelected := selected[record.ID]
		for _, identifier := range record.Identifiers {
			contacts = append(contacts, directory.Contact{
				Identifier: identifier,
				IsSelected: isSelected,
			})
		}
	}
	return contacts
}

// ExistingContacts returns the allowed ids that still appear in records
func ExistingContacts(allowed []string, records []directory.ContactRecord) []string {
	present := make(map[string]struct{}, len(records))
	for _, record := range records {
		present[record.ID] = struct{}{}
	}

	kept := make([]string, 0, len(allowed))
	for _, id := range allowed {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}
