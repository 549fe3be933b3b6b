// Package coordinator provides the contact sync coordinator.
//
// The coordinator owns two scheduled tasks: a periodic contact download and an
// on-demand contact upload. It reconciles the persisted allow-list against
// each full contact list it receives and decides when an upload is warranted.
//
// # Architecture
//
// The coordinator separates concerns between:
//
//   - internal/sync: Domain types, the directory downloader and the observer contract
//   - internal/sync/scheduler: When each task runs, retries and backoff
//   - internal/sync/coordinator: What each task does and how their results interact
//
// All coordinator methods run on a single sequence. Downloads and uploads run
// off the sequence and post their results back; Close drops results that
// arrive afterwards.
//
// # Downloads
//
// DownloadContacts(forceFull) ORs forceFull into a pending "next fetch must be
// full" flag and asks the download scheduler for an immediate attempt. The flag
// is cleared only once a full list arrives, so a forced request is never lost
// to a later non-forced one.
//
// # Uploads
//
// The directory needs the complete contact list to build an upload, so an
// upload request never uploads directly. It moves the upload state to
// WaitingForDownload and forces a full download; the upload starts when that
// download succeeds. At most one upload is in progress. When the allow-list
// changes during an upload, exactly one follow-up upload is queued for after
// it completes.
//
// # Failures
//
// Download and upload failures are reported to the owning scheduler, which
// retries with backoff. The coordinator never retries on its own.
package coordinator
