// Package sync provides the contact synchronization domain shared by the
// coordinator and its collaborators.
//
// # Core Interfaces
//
//   - Downloader: fetches the user's contact records from the directory
//   - Uploader: publishes the device's contact list to the directory
//   - Observer: receives allow-list changes, downloaded snapshots and upload results
//
// # Subpackages
//
// The sync/coordinator subpackage owns the two scheduled tasks (periodic
// download, on-demand upload) and decides when an upload is warranted. The
// sync/scheduler subpackage provides the retryable-task primitive both tasks
// run on, and sync/state persists the allow-list.
//
// # Downloads
//
// A download first asks the directory whether contacts changed since the last
// upload. When the caller only wants changed data and nothing changed, the
// download succeeds without a list. Otherwise every page of contact records is
// fetched; a failed or timed-out page fails the whole download.
//
// # Upload States
//
// UploadState guards the single outstanding upload:
//
//   - UploadStateIdle: no upload requested
//   - UploadStateWaitingForDownload: an upload was requested and waits for a full list
//   - UploadStateInProgress: the upload RPC is running
//
// # Error Handling
//
// Download and upload failures are returned as *Error values naming the RPC
// stage that failed. They are reported to the owning scheduler only and never
// surfaced to the user.
package sync
