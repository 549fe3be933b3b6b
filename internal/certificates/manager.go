package certificates

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/crypto/hkdf"
	"k8s.io/utils/clock"

	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/observer"
	"github.com/stacklok/nearby-sync/internal/sequence"
	"github.com/stacklok/nearby-sync/internal/sharing"
	pkgsync "github.com/stacklok/nearby-sync/internal/sync"
	"github.com/stacklok/nearby-sync/internal/sync/scheduler"
)

const (
	// PublicDownloadTaskName names the public certificate download scheduler
	PublicDownloadTaskName = "public-certificate-download"
	// PrivateRefreshTaskName names the private certificate refresh scheduler
	PrivateRefreshTaskName = "private-certificate-refresh"

	// DefaultDownloadInterval is how often public certificates are downloaded
	DefaultDownloadInterval = 12 * time.Hour
	// DefaultRefreshInterval is how often expired private certificates are replaced
	DefaultRefreshInterval = time.Hour
	// DefaultValidity is the lifetime of a generated private certificate
	DefaultValidity = 3 * 24 * time.Hour
	// DefaultRPCTimeout bounds each ListPublicCertificates RPC
	DefaultRPCTimeout = 60 * time.Second
)

// Visibilities that own a private certificate
var certificateVisibilities = []sharing.Visibility{
	sharing.VisibilityAllContacts,
	sharing.VisibilitySelectedContacts,
}

// Observer is notified of certificate changes on the manager's sequence
type Observer interface {
	OnPublicCertificatesDownloaded()
	OnPrivateCertificatesChanged()
}

// PayloadProvider derives advertisement payloads
type PayloadProvider interface {
	AdvertisementPayload(visibility sharing.Visibility) (Payload, error)
}

// Status describes the certificate manager's state
type Status struct {
	Initialized           bool       `json:"initialized"`
	PublicCertificates    int        `json:"publicCertificates"`
	PrivateCertificates   int        `json:"privateCertificates"`
	NextPublicExpiration  *time.Time `json:"nextPublicExpiration,omitempty"`
	NextPrivateExpiration *time.Time `json:"nextPrivateExpiration,omitempty"`
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock sets the clock used for certificate validity
func WithClock(clk clock.PassiveClock) ManagerOption {
	return func(m *Manager) {
		m.clock = clk
	}
}

// WithRandom sets the source of salts and generated keys
func WithRandom(r io.Reader) ManagerOption {
	return func(m *Manager) {
		m.random = r
	}
}

// WithExecutor sets how downloads are run off the sequence
func WithExecutor(execute func(task func())) ManagerOption {
	return func(m *Manager) {
		m.execute = execute
	}
}

// WithDownloadInterval sets the public certificate download period
func WithDownloadInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.downloadInterval = interval
		}
	}
}

// WithValidity sets the lifetime of generated private certificates
func WithValidity(validity time.Duration) ManagerOption {
	return func(m *Manager) {
		if validity > 0 {
			m.validity = validity
		}
	}
}

// WithRPCTimeout bounds each directory RPC
func WithRPCTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.rpcTimeout = timeout
		}
	}
}

// Manager keeps private certificates current, mirrors public certificates
// from the directory and derives advertisement payloads. All methods must be
// called on the manager's sequence.
type Manager struct {
	runner  sequence.Runner
	token   *sequence.Token
	ctx     context.Context
	cancel  context.CancelFunc
	execute func(task func())

	storage  Directory
	client   directory.Client
	deviceID string

	downloadScheduler scheduler.Scheduler
	refreshScheduler  scheduler.Scheduler
	downloadInterval  time.Duration
	validity          time.Duration
	rpcTimeout        time.Duration

	clock     clock.PassiveClock
	random    io.Reader
	observers observer.List[Observer]
	started   bool
}

// NewManager creates a certificate manager for the device
func NewManager(
	runner sequence.Runner,
	schedulers scheduler.Factory,
	storage Directory,
	client directory.Client,
	deviceID string,
	opts ...ManagerOption,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner:           runner,
		token:            sequence.NewToken(),
		ctx:              ctx,
		cancel:           cancel,
		execute:          func(task func()) { go task() },
		storage:          storage,
		client:           client,
		deviceID:         deviceID,
		downloadInterval: DefaultDownloadInterval,
		validity:         DefaultValidity,
		rpcTimeout:       DefaultRPCTimeout,
		clock:            clock.RealClock{},
		random:           rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.downloadScheduler = schedulers.CreatePeriodicScheduler(
		PublicDownloadTaskName, m.downloadInterval, m.onDownloadRequested)
	m.refreshScheduler = schedulers.CreatePeriodicScheduler(
		PrivateRefreshTaskName, DefaultRefreshInterval, m.onRefreshRequested)
	return m
}

// Start initializes storage and then starts the scheduled tasks
func (m *Manager) Start() {
	if m.started {
		return
	}
	m.started = true
	m.storage.Initialize(func(success bool) {
		if !m.token.Valid() {
			return
		}
		if !success {
			slog.Error("Certificate storage failed to initialize, certificates unavailable")
			m.started = false
			return
		}
		if !m.started {
			return
		}
		changed, err := m.EnsurePrivateCertificates()
		if err != nil {
			slog.Error("Failed to generate private certificates", "error", err)
		}
		// Observers that asked before storage was ready saw no certificates
		if !changed {
			m.observers.Notify(func(o Observer) { o.OnPrivateCertificatesChanged() })
		}
		m.downloadScheduler.Start()
		m.refreshScheduler.Start()
	})
}

// Stop stops the scheduled tasks
func (m *Manager) Stop() {
	m.started = false
	m.downloadScheduler.Stop()
	m.refreshScheduler.Stop()
}

// Close stops the manager and drops results of in-flight work
func (m *Manager) Close() {
	m.Stop()
	m.token.Invalidate()
	m.cancel()
}

// AddObserver registers o
func (m *Manager) AddObserver(o Observer) {
	m.observers.Add(o)
}

// RemoveObserver unregisters o
func (m *Manager) RemoveObserver(o Observer) {
	m.observers.Remove(o)
}

// DownloadPublicCertificates requests an immediate public certificate download
func (m *Manager) DownloadPublicCertificates() {
	m.downloadScheduler.MakeImmediateRequest()
}

// Status reports the manager's state
func (m *Manager) Status() Status {
	st := Status{Initialized: m.storage.IsInitialized()}
	if ids, err := m.storage.PublicCertificateIDs(); err == nil {
		st.PublicCertificates = len(ids)
	}
	if certs, err := m.storage.PrivateCertificates(); err == nil {
		st.PrivateCertificates = len(certs)
	}
	if t, ok := m.storage.NextPublicCertificateExpirationTime(); ok {
		st.NextPublicExpiration = &t
	}
	if t, ok := m.storage.NextPrivateCertificateExpirationTime(); ok {
		st.NextPrivateExpiration = &t
	}
	return st
}

// AdvertisementPayload returns a fresh salt and the metadata encryption key of
// the valid private certificate for visibility, encrypted under that salt.
// Visibilities that are not contact-scoped use the selected-contacts
// certificate.
func (m *Manager) AdvertisementPayload(visibility sharing.Visibility) (Payload, error) {
	certs, err := m.storage.PrivateCertificates()
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrNoCertificateForVisibility, err)
	}

	want := visibility
	if !want.IsContactVisible() {
		want = sharing.VisibilitySelectedContacts
	}

	now := m.clock.Now()
	for _, cert := range certs {
		if cert.Visibility != want || !cert.IsValidAt(now) {
			continue
		}
		salt := make([]byte, SaltSize)
		if _, err := io.ReadFull(m.random, salt); err != nil {
			return Payload{}, fmt.Errorf("failed to generate salt: %w", err)
		}
		key, err := encryptMetadataKey(cert, salt)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Salt: salt, EncryptedMetadataKey: key}, nil
	}
	return Payload{}, fmt.Errorf("%w: %s", ErrNoCertificateForVisibility, visibility)
}

// encryptMetadataKey encrypts the certificate's metadata encryption key with
// AES-CTR under its secret key, using an IV derived from salt with HKDF-SHA256
func encryptMetadataKey(cert PrivateCertificate, salt []byte) ([]byte, error) {
	if len(cert.MetadataEncryptionKey) != EncryptedMetadataKeySize {
		return nil, fmt.Errorf("metadata encryption key has %d bytes, want %d",
			len(cert.MetadataEncryptionKey), EncryptedMetadataKeySize)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, salt, nil, nil), iv); err != nil {
		return nil, fmt.Errorf("failed to derive iv: %w", err)
	}
	block, err := aes.NewCipher(cert.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate secret key: %w", err)
	}

	out := make([]byte, len(cert.MetadataEncryptionKey))
	cipher.NewCTR(block, iv).XORKeyStream(out, cert.MetadataEncryptionKey)
	return out, nil
}

// EnsurePrivateCertificates drops expired private certificates and generates
// one for every visibility that lacks a valid certificate. It reports whether
// the stored set changed.
func (m *Manager) EnsurePrivateCertificates() (bool, error) {
	return m.rotatePrivateCertificates(nil)
}

// rotatePrivateCertificates is EnsurePrivateCertificates that additionally
// replaces the certificates for the given visibilities
func (m *Manager) rotatePrivateCertificates(rotate []sharing.Visibility) (bool, error) {
	certs, err := m.storage.PrivateCertificates()
	if err != nil {
		return false, err
	}

	now := m.clock.Now()
	kept := slices.DeleteFunc(slices.Clone(certs), func(c PrivateCertificate) bool {
		return !now.Before(c.NotAfter) || slices.Contains(rotate, c.Visibility)
	})
	changed := len(kept) != len(certs)

	for _, visibility := range certificateVisibilities {
		if slices.ContainsFunc(kept, func(c PrivateCertificate) bool {
			return c.Visibility == visibility && c.IsValidAt(now)
		}) {
			continue
		}
		cert, err := m.newPrivateCertificate(visibility, now)
		if err != nil {
			return false, err
		}
		kept = append(kept, cert)
		changed = true
	}

	if !changed {
		return false, nil
	}
	if err := m.storage.ReplacePrivateCertificates(kept); err != nil {
		return false, err
	}
	slog.Info("Private certificates updated", "count", len(kept))
	m.observers.Notify(func(o Observer) { o.OnPrivateCertificatesChanged() })
	return true, nil
}

func (m *Manager) newPrivateCertificate(visibility sharing.Visibility, now time.Time) (PrivateCertificate, error) {
	cert := PrivateCertificate{
		SecretID:              make([]byte, 32),
		Visibility:            visibility,
		NotBefore:             now,
		NotAfter:              now.Add(m.validity),
		SecretKey:             make([]byte, SecretKeySize),
		MetadataEncryptionKey: make([]byte, MetadataEncryptionKeySize),
	}
	for _, b := range [][]byte{cert.SecretID, cert.SecretKey, cert.MetadataEncryptionKey} {
		if _, err := io.ReadFull(m.random, b); err != nil {
			return PrivateCertificate{}, fmt.Errorf("failed to generate certificate: %w", err)
		}
	}
	return cert, nil
}

func (m *Manager) onRefreshRequested() {
	_, err := m.EnsurePrivateCertificates()
	if err != nil {
		slog.Warn("Private certificate refresh failed", "error", err)
	}
	m.refreshScheduler.HandleResult(err == nil)
}

func (m *Manager) onDownloadRequested() {
	if !m.storage.IsInitialized() {
		m.downloadScheduler.HandleResult(false)
		return
	}
	m.execute(func() {
		certs, err := m.fetchPublicCertificates(m.ctx)
		m.token.Post(m.runner, func() {
			m.onDownloadFinished(certs, err)
		})
	})
}

func (m *Manager) fetchPublicCertificates(ctx context.Context) ([]PublicCertificate, error) {
	var certs []PublicCertificate
	pageToken := ""
	for {
		resp, err := m.listPage(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		certs = append(certs, resp.PublicCertificates...)
		pageToken = resp.NextPageToken
		if pageToken == "" {
			return certs, nil
		}
	}
}

func (m *Manager) listPage(ctx context.Context, pageToken string) (*directory.ListPublicCertificatesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, m.rpcTimeout)
	defer cancel()

	resp, err := m.client.ListPublicCertificates(ctx, directory.ListPublicCertificatesRequest{
		Parent:    directory.DeviceParent(m.deviceID),
		PageToken: pageToken,
	})
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, directory.ErrTimeout) {
		err = fmt.Errorf("%w: %w", directory.ErrTimeout, err)
	}
	return resp, err
}

func (m *Manager) onDownloadFinished(certs []PublicCertificate, err error) {
	if err != nil {
		slog.Warn("Public certificate download failed", "error", err)
		m.downloadScheduler.HandleResult(false)
		return
	}

	m.storage.AddPublicCertificates(certs, func(success bool) {
		if !success {
			m.downloadScheduler.HandleResult(false)
			return
		}
		m.storage.RemoveExpiredPublicCertificates(m.clock.Now(), func(success bool) {
			if success {
				slog.Info("Public certificates downloaded", "received", len(certs))
				m.observers.Notify(func(o Observer) { o.OnPublicCertificatesDownloaded() })
			}
			m.downloadScheduler.HandleResult(success)
		})
	})
}

// OnAllowlistChanged rotates the selected-contacts certificate when contacts
// were removed so they cannot decode future advertisements
func (m *Manager) OnAllowlistChanged(_, removed bool) {
	if !removed || !m.storage.IsInitialized() {
		return
	}
	if _, err := m.rotatePrivateCertificates([]sharing.Visibility{sharing.VisibilitySelectedContacts}); err != nil {
		slog.Warn("Failed to rotate selected-contacts certificate", "error", err)
	}
}

// OnContactsDownloaded implements sync.Observer
func (*Manager) OnContactsDownloaded([]string, []directory.ContactRecord) {}

// OnContactsUploaded downloads public certificates when the directory's view
// of this device's contacts changed
func (m *Manager) OnContactsUploaded(changedSinceLastUpload bool) {
	if changedSinceLastUpload {
		m.DownloadPublicCertificates()
	}
}

var (
	_ pkgsync.Observer = (*Manager)(nil)
	_ PayloadProvider  = (*Manager)(nil)
)
