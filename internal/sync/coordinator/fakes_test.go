package coordinator

import (
	"github.com/stacklok/nearby-sync/internal/directory"
)

type allowlistEvent struct {
	added, removed bool
}

type downloadEvent struct {
	allowed  []string
	contacts []directory.ContactRecord
}

type recordingObserver struct {
	allowlistChanges []allowlistEvent
	downloads        []downloadEvent
	uploads          []bool
}

func (r *recordingObserver) OnAllowlistChanged(added, removed bool) {
	r.allowlistChanges = append(r.allowlistChanges, allowlistEvent{added: added, removed: removed})
}

func (r *recordingObserver) OnContactsDownloaded(allowed []string, contacts []directory.ContactRecord) {
	r.downloads = append(r.downloads, downloadEvent{allowed: allowed, contacts: contacts})
}

func (r *recordingObserver) OnContactsUploaded(changedSinceLastUpload bool) {
	r.uploads = append(r.uploads, changedSinceLastUpload)
}
