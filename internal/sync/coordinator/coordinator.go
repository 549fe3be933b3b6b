package coordinator

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/invariant"
	"github.com/stacklok/nearby-sync/internal/observer"
	"github.com/stacklok/nearby-sync/internal/sequence"
	pkgsync "github.com/stacklok/nearby-sync/internal/sync"
	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
	"github.com/stacklok/nearby-sync/internal/sync/state"
	"github.com/stacklok/nearby-sync/internal/telemetry"
)

// Coordinator manages contact downloads, allow-list reconciliation and uploads.
// All methods must be called on the coordinator's sequence.
type Coordinator interface {
	// Start starts both scheduled tasks
	Start()
	// Stop stops both scheduled tasks. In-flight work still completes.
	Stop()
	// IsRunning reports whether the coordinator is started
	IsRunning() bool
	// Close stops the coordinator and drops results of in-flight work
	Close()

	AddObserver(o pkgsync.Observer)
	RemoveObserver(o pkgsync.Observer)

	// DownloadContacts requests a download. A forced request fetches the full
	// list even if the directory reports no change.
	DownloadContacts(forceFull bool)
	// SetAllowedContacts replaces the allow-list. An upload is requested only
	// when the list changes.
	SetAllowedContacts(ids []string) error
	// AllowedContacts returns the persisted allow-list
	AllowedContacts() []string
	// Status reports the coordinator's current state
	Status() Status
}

// TaskStatus describes one scheduled task
type TaskStatus struct {
	Running             bool           `json:"running"`
	WaitingForResult    bool           `json:"waitingForResult"`
	ConsecutiveFailures int            `json:"consecutiveFailures"`
	LastSuccess         *time.Time     `json:"lastSuccess,omitempty"`
	NextRequestIn       *time.Duration `json:"nextRequestIn,omitempty"`
}

// Status describes the coordinator's state
type Status struct {
	UploadState          string     `json:"uploadState"`
	NextFetchMustBeFull  bool       `json:"nextFetchMustBeFull"`
	FollowUpUploadQueued bool       `json:"followUpUploadQueued"`
	AllowlistSize        int        `json:"allowlistSize"`
	Download             TaskStatus `json:"download"`
	Upload               TaskStatus `json:"upload"`
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	runner sequence.Runner
	token  *sequence.Token

	// Lifetime of off-sequence work
	ctx    context.Context
	cancel context.CancelFunc

	downloader pkgsync.Downloader
	uploader   pkgsync.Uploader
	allowlist  state.AllowlistService
	observers  observer.List[pkgsync.Observer]

	downloadScheduler scheduler.Scheduler
	uploadScheduler   scheduler.Scheduler
	downloadInterval  time.Duration

	nextFetchMustBeFull bool
	downloadInFlight    bool
	uploadState         pkgsync.UploadState
	followUpUpload      bool

	clock       clock.PassiveClock
	execute     func(task func())
	syncMetrics *telemetry.SyncMetrics
}

// New creates a new coordinator with injected dependencies. Its tasks are
// created from schedulers and its callbacks posted to runner.
func New(
	runner sequence.Runner,
	schedulers scheduler.Factory,
	downloader pkgsync.Downloader,
	uploader pkgsync.Uploader,
	allowlist state.AllowlistService,
	opts ...Option,
) Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &defaultCoordinator{
		runner:           runner,
		token:            sequence.NewToken(),
		ctx:              ctx,
		cancel:           cancel,
		downloader:       downloader,
		uploader:         uploader,
		allowlist:        allowlist,
		downloadInterval: DefaultDownloadInterval,
		clock:            clock.RealClock{},
		execute:          func(task func()) { go task() },
	}

	for _, opt := range opts {
		opt(c)
	}

	c.downloadScheduler = schedulers.CreatePeriodicScheduler(
		DownloadTaskName, c.downloadInterval, c.onDownloadRequested)
	c.uploadScheduler = schedulers.CreateOnDemandScheduler(
		UploadTaskName, c.onUploadRequested)

	return c
}

func (c *defaultCoordinator) Start() {
	if c.IsRunning() {
		return
	}
	slog.Info("Starting contact sync coordinator",
		"download_interval", c.downloadInterval,
		"allowlist_size", len(c.allowlist.Allowed()))
	c.downloadScheduler.Start()
	c.uploadScheduler.Start()
}

func (c *defaultCoordinator) Stop() {
	if !c.IsRunning() {
		return
	}
	slog.Info("Stopping contact sync coordinator")
	c.downloadScheduler.Stop()
	c.uploadScheduler.Stop()
}

func (c *defaultCoordinator) IsRunning() bool {
	return c.downloadScheduler.IsRunning()
}

func (c *defaultCoordinator) Close() {
	c.Stop()
	c.token.Invalidate()
	c.cancel()
}

func (c *defaultCoordinator) AddObserver(o pkgsync.Observer) {
	c.observers.Add(o)
}

func (c *defaultCoordinator) RemoveObserver(o pkgsync.Observer) {
	c.observers.Remove(o)
}

func (c *defaultCoordinator) DownloadContacts(forceFull bool) {
	// A request for a full download always takes priority
	c.nextFetchMustBeFull = c.nextFetchMustBeFull || forceFull
	c.downloadScheduler.MakeImmediateRequest()
}

func (c *defaultCoordinator) SetAllowedContacts(ids []string) error {
	change, err := c.allowlist.Replace(ids)
	if err != nil {
		return err
	}
	if !change.Changed() {
		return nil
	}

	c.notifyAllowlistChanged(change)
	c.requestUpload()
	return nil
}

func (c *defaultCoordinator) AllowedContacts() []string {
	return c.allowlist.Allowed()
}

func (c *defaultCoordinator) Status() Status {
	return Status{
		UploadState:          c.uploadState.String(),
		NextFetchMustBeFull:  c.nextFetchMustBeFull,
		FollowUpUploadQueued: c.followUpUpload,
		AllowlistSize:        len(c.allowlist.Allowed()),
		Download:             taskStatus(c.downloadScheduler),
		Upload:               taskStatus(c.uploadScheduler),
	}
}

func taskStatus(s scheduler.Scheduler) TaskStatus {
	ts := TaskStatus{
		Running:             s.IsRunning(),
		WaitingForResult:    s.IsWaitingForResult(),
		ConsecutiveFailures: s.NumConsecutiveFailures(),
	}
	if last, ok := s.LastSuccessTime(); ok {
		ts.LastSuccess = &last
	}
	if next, ok := s.TimeUntilNextRequest(); ok {
		ts.NextRequestIn = &next
	}
	return ts
}

// requestUpload asks for an upload unless the pending or running one will
// already carry the current allow-list
func (c *defaultCoordinator) requestUpload() {
	switch c.uploadState {
	case pkgsync.UploadStateIdle:
		c.uploadScheduler.MakeImmediateRequest()
	case pkgsync.UploadStateWaitingForDownload:
		// The upload reads the allow-list when its download completes
	case pkgsync.UploadStateInProgress:
		if !c.followUpUpload {
			slog.Debug("Allow-list changed during upload, queueing follow-up upload")
		}
		c.followUpUpload = true
	}
}

func (c *defaultCoordinator) onDownloadRequested() {
	invariant.Check(!c.downloadInFlight, "contact download requested while one is in flight")
	c.downloadInFlight = true

	onlyIfChanged := !c.nextFetchMustBeFull
	start := c.clock.Now()
	slog.Debug("Contact download requested", "only_if_changed", onlyIfChanged)

	c.execute(func() {
		result, err := c.downloader.Download(c.ctx, onlyIfChanged)
		c.token.Post(c.runner, func() {
			c.onDownloadFinished(start, result, err)
		})
	})
}

func (c *defaultCoordinator) onDownloadFinished(start time.Time, result *pkgsync.DownloadResult, err error) {
	c.downloadInFlight = false
	duration := c.clock.Since(start)

	if err != nil {
		slog.Error("Contact download failed", "error", err, "duration", duration)
		c.syncMetrics.RecordDownloadDuration(c.ctx, duration, false, false)
		c.downloadScheduler.HandleResult(false)
		return
	}

	c.syncMetrics.RecordDownloadDuration(c.ctx, duration, true, result.FullList)
	if result.FullList {
		c.processContactList(result.ChangedSinceLastUpload, result.Contacts)
	} else {
		slog.Debug("Contacts unchanged since last upload")
	}

	c.downloadScheduler.HandleResult(true)
}

func (c *defaultCoordinator) processContactList(changedSinceLastUpload bool, contacts []directory.ContactRecord) {
	// A complete list was returned. Do not download the full list again
	// until contacts change or a full download is requested.
	c.nextFetchMustBeFull = false

	// Remove contacts from the allow-list that are no longer in the contact list
	change, err := c.allowlist.UpdateAtomically(func(current []string) []string {
		return pkgsync.ExistingContacts(current, contacts)
	})
	if err != nil {
		slog.Error("Failed to reconcile allow-list", "error", err)
	}
	if change.Changed() {
		c.notifyAllowlistChanged(change)
	}

	allowed := c.allowlist.Allowed()
	slog.Info("Contacts downloaded",
		"contacts", len(contacts),
		"allowlist_size", len(allowed),
		"changed_since_last_upload", changedSinceLastUpload,
		"upload_state", c.uploadState.String())

	c.observers.Notify(func(o pkgsync.Observer) {
		o.OnContactsDownloaded(allowed, contacts)
	})

	switch c.uploadState {
	case pkgsync.UploadStateIdle:
		if changedSinceLastUpload || change.Changed() {
			c.uploadScheduler.MakeImmediateRequest()
		}
	case pkgsync.UploadStateWaitingForDownload:
		c.startUpload(changedSinceLastUpload, contacts)
	case pkgsync.UploadStateInProgress:
		// The running upload carries a stale allow-list. Contact changes made
		// after it started are picked up by a later periodic download.
		if change.Changed() {
			c.followUpUpload = true
		}
	}
}

func (c *defaultCoordinator) onUploadRequested() {
	invariant.Check(c.uploadState == pkgsync.UploadStateIdle,
		"contact upload requested while another is pending",
		"upload_state", c.uploadState.String())

	// Contacts are not kept locally, so the full list is fetched before every upload
	c.uploadState = pkgsync.UploadStateWaitingForDownload
	c.DownloadContacts(true)
}

func (c *defaultCoordinator) startUpload(changedSinceLastUpload bool, records []directory.ContactRecord) {
	c.uploadState = pkgsync.UploadStateInProgress
	contacts := pkgsync.RecordsToContacts(c.allowlist.Allowed(), records)
	start := c.clock.Now()
	slog.Info("Starting contact upload", "contacts", len(contacts))

	c.execute(func() {
		err := c.uploader.UploadContacts(c.ctx, contacts)
		c.token.Post(c.runner, func() {
			c.onUploadFinished(start, changedSinceLastUpload, err)
		})
	})
}

func (c *defaultCoordinator) onUploadFinished(start time.Time, changedSinceLastUpload bool, err error) {
	success := err == nil
	duration := c.clock.Since(start)
	c.syncMetrics.RecordUploadDuration(c.ctx, duration, success)

	if success {
		slog.Info("Contact upload succeeded", "duration", duration)
		c.observers.Notify(func(o pkgsync.Observer) {
			o.OnContactsUploaded(changedSinceLastUpload)
		})
	} else {
		slog.Error("Contact upload failed", "error", err, "duration", duration)
	}

	c.uploadState = pkgsync.UploadStateIdle
	c.uploadScheduler.HandleResult(success)

	if c.followUpUpload {
		c.followUpUpload = false
		c.uploadScheduler.MakeImmediateRequest()
	}
}

func (c *defaultCoordinator) notifyAllowlistChanged(change state.Change) {
	allowed := c.allowlist.Allowed()
	slog.Info("Contact allow-list changed",
		"added", change.Added,
		"removed", change.Removed,
		"size", len(allowed))
	c.syncMetrics.RecordAllowlistSize(c.ctx, len(allowed))
	c.observers.Notify(func(o pkgsync.Observer) {
		o.OnAllowlistChanged(change.Added, change.Removed)
	})
}
