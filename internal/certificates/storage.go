package certificates

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/stacklok/nearby-sync/internal/prefs"
	"github.com/stacklok/nearby-sync/internal/sequence"
)

// maxInitializeAttempts bounds how often a corrupt public store is destroyed
// and reopened during Initialize
const maxInitializeAttempts = 3

// Directory stores private and public certificates. Methods must be called on
// the owner's sequence and callbacks run there.
type Directory interface {
	IsInitialized() bool
	// Initialize opens the public store. On failure every operation keeps
	// failing with ErrNotInitialized until a later Initialize succeeds.
	Initialize(done func(success bool))

	// PublicCertificateIDs returns the stored ids in insertion order
	PublicCertificateIDs() ([]string, error)
	PublicCertificates(done func(success bool, certs []PublicCertificate))
	ReplacePublicCertificates(certs []PublicCertificate, done func(success bool))
	AddPublicCertificates(certs []PublicCertificate, done func(success bool))
	// RemoveExpiredPublicCertificates drops certificates that expired before now
	RemoveExpiredPublicCertificates(now time.Time, done func(success bool))
	ClearPublicCertificates(done func(success bool))

	PrivateCertificates() ([]PrivateCertificate, error)
	ReplacePrivateCertificates(certs []PrivateCertificate) error
	ClearPrivateCertificates() error

	NextPrivateCertificateExpirationTime() (time.Time, bool)
	NextPublicCertificateExpirationTime() (time.Time, bool)
}

type expiration struct {
	id string
	at time.Time
}

// Storage implements Directory with private certificates in preferences and
// public certificates in a PublicStore
type Storage struct {
	runner     sequence.Runner
	background sequence.Runner
	token      *sequence.Token
	stopLoop   context.CancelFunc

	prefs prefs.Store
	store PublicStore

	initialized  bool
	initAttempts int
	// Mirrors of the public store, refreshed after every store operation
	ids         []string
	expirations []expiration
}

// StorageOption configures a Storage
type StorageOption func(*Storage)

// WithBackgroundRunner runs public store operations on r. By default the
// storage starts its own loop, stopped by Close.
func WithBackgroundRunner(r sequence.Runner) StorageOption {
	return func(s *Storage) {
		s.background = r
	}
}

// NewStorage creates a storage whose callbacks are posted to runner
func NewStorage(runner sequence.Runner, store prefs.Store, public PublicStore, opts ...StorageOption) *Storage {
	s := &Storage{
		runner: runner,
		token:  sequence.NewToken(),
		prefs:  store,
		store:  public,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.background == nil {
		loop := sequence.NewLoop()
		ctx, cancel := context.WithCancel(context.Background())
		s.background = loop
		s.stopLoop = cancel
		go func() {
			_ = loop.Run(ctx)
		}()
	}
	return s
}

// Close drops the results of pending operations
func (s *Storage) Close() {
	s.token.Invalidate()
	if s.stopLoop != nil {
		s.stopLoop()
	}
}

// IsInitialized implements Directory
func (s *Storage) IsInitialized() bool {
	return s.initialized
}

// Initialize implements Directory
func (s *Storage) Initialize(done func(success bool)) {
	if s.initialized {
		s.token.Post(s.runner, func() { done(true) })
		return
	}
	s.initAttempts = 0
	s.attemptInitialize(done)
}

func (s *Storage) attemptInitialize(done func(success bool)) {
	s.initAttempts++
	var certs []PublicCertificate
	s.inBackground(func() error {
		if err := s.store.Init(); err != nil {
			return err
		}
		var err error
		certs, err = s.store.Load()
		return err
	}, func(err error) {
		if err != nil {
			slog.Warn("Failed to initialize public certificate store",
				"attempt", s.initAttempts, "error", err)
			if s.initAttempts >= maxInitializeAttempts {
				slog.Error("Giving up on public certificate store", "attempts", s.initAttempts)
				done(false)
				return
			}
			s.destroyAndReinitialize(done)
			return
		}

		s.initialized = true
		s.syncIndex(certs)
		slog.Info("Certificate storage initialized", "public_certificates", len(s.ids))
		done(true)
	})
}

func (s *Storage) destroyAndReinitialize(done func(success bool)) {
	s.inBackground(s.store.Destroy, func(err error) {
		if err != nil {
			slog.Error("Failed to destroy corrupt public certificate store", "error", err)
			done(false)
			return
		}
		s.attemptInitialize(done)
	})
}

// PublicCertificateIDs implements Directory
func (s *Storage) PublicCertificateIDs() ([]string, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	return slices.Clone(s.ids), nil
}

// PublicCertificates implements Directory
func (s *Storage) PublicCertificates(done func(success bool, certs []PublicCertificate)) {
	if !s.initialized {
		s.token.Post(s.runner, func() { done(false, nil) })
		return
	}
	var certs []PublicCertificate
	s.inBackground(func() error {
		var err error
		certs, err = s.store.Load()
		return err
	}, func(err error) {
		if err != nil {
			slog.Warn("Failed to load public certificates", "error", err)
			done(false, nil)
			return
		}
		done(true, certs)
	})
}

// ReplacePublicCertificates implements Directory
func (s *Storage) ReplacePublicCertificates(certs []PublicCertificate, done func(success bool)) {
	certs = slices.Clone(certs)
	s.mutate("replace", func() error {
		if err := s.store.Destroy(); err != nil {
			return err
		}
		if err := s.store.Init(); err != nil {
			return err
		}
		return s.store.Put(certs)
	}, done)
}

// AddPublicCertificates implements Directory
func (s *Storage) AddPublicCertificates(certs []PublicCertificate, done func(success bool)) {
	certs = slices.Clone(certs)
	s.mutate("add", func() error {
		return s.store.Put(certs)
	}, done)
}

// RemoveExpiredPublicCertificates implements Directory
func (s *Storage) RemoveExpiredPublicCertificates(now time.Time, done func(success bool)) {
	var expired []string
	for _, e := range s.expirations {
		if !e.at.Before(now) {
			break
		}
		expired = append(expired, e.id)
	}
	s.mutate("remove_expired", func() error {
		if len(expired) == 0 {
			return nil
		}
		return s.store.Delete(expired)
	}, done)
}

// ClearPublicCertificates implements Directory
func (s *Storage) ClearPublicCertificates(done func(success bool)) {
	s.mutate("clear", func() error {
		if err := s.store.Destroy(); err != nil {
			return err
		}
		return s.store.Init()
	}, done)
}

// mutate runs work in the background, then reloads the store so the mirrors
// and the expiration index match it whether or not work succeeded
func (s *Storage) mutate(op string, work func() error, done func(success bool)) {
	if !s.initialized {
		s.token.Post(s.runner, func() { done(false) })
		return
	}

	var current []PublicCertificate
	var loadErr error
	s.inBackground(func() error {
		err := work()
		current, loadErr = s.store.Load()
		return err
	}, func(err error) {
		if loadErr != nil {
			slog.Error("Public certificate store is unreadable, reinitialization required",
				"operation", op, "error", loadErr)
			s.initialized = false
			s.ids = nil
			s.expirations = nil
			done(false)
			return
		}
		s.syncIndex(current)
		if err != nil {
			slog.Warn("Public certificate operation failed", "operation", op, "error", err)
			done(false)
			return
		}
		done(true)
	})
}

// syncIndex refreshes the mirrors from certs and rewrites the persisted
// expiration index if it differs
func (s *Storage) syncIndex(certs []PublicCertificate) {
	ids := make([]string, 0, len(certs))
	index := make(map[string]time.Time, len(certs))
	for _, cert := range certs {
		id := PublicCertificateID(cert)
		if _, seen := index[id]; !seen {
			ids = append(ids, id)
		}
		index[id] = cert.EndTime
	}

	s.ids = ids
	s.expirations = make([]expiration, 0, len(index))
	for id, at := range index {
		s.expirations = append(s.expirations, expiration{id: id, at: at})
	}
	sort.Slice(s.expirations, func(i, j int) bool {
		if s.expirations[i].at.Equal(s.expirations[j].at) {
			return s.expirations[i].id < s.expirations[j].id
		}
		return s.expirations[i].at.Before(s.expirations[j].at)
	})

	if sameTimes(s.prefs.GetTimeMap(prefs.KeyPublicCertExpirations), index) {
		return
	}
	slog.Debug("Rewriting public certificate expiration index", "entries", len(index))
	if err := s.prefs.SetTimeMap(prefs.KeyPublicCertExpirations, index); err != nil {
		slog.Error("Failed to save public certificate expiration index", "error", err)
	}
}

// PrivateCertificates implements Directory
func (s *Storage) PrivateCertificates() ([]PrivateCertificate, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	var certs []PrivateCertificate
	if _, err := s.prefs.GetJSON(prefs.KeyPrivateCertificates, &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// ReplacePrivateCertificates implements Directory
func (s *Storage) ReplacePrivateCertificates(certs []PrivateCertificate) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if certs == nil {
		certs = []PrivateCertificate{}
	}
	return s.prefs.SetJSON(prefs.KeyPrivateCertificates, certs)
}

// ClearPrivateCertificates implements Directory
func (s *Storage) ClearPrivateCertificates() error {
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.prefs.Delete(prefs.KeyPrivateCertificates)
}

// NextPrivateCertificateExpirationTime implements Directory
func (s *Storage) NextPrivateCertificateExpirationTime() (time.Time, bool) {
	certs, err := s.PrivateCertificates()
	if err != nil || len(certs) == 0 {
		return time.Time{}, false
	}
	next := certs[0].NotAfter
	for _, cert := range certs[1:] {
		if cert.NotAfter.Before(next) {
			next = cert.NotAfter
		}
	}
	return next, true
}

// NextPublicCertificateExpirationTime implements Directory
func (s *Storage) NextPublicCertificateExpirationTime() (time.Time, bool) {
	if !s.initialized || len(s.expirations) == 0 {
		return time.Time{}, false
	}
	return s.expirations[0].at, true
}

// inBackground runs work on the background runner and done on the sequence
func (s *Storage) inBackground(work func() error, done func(err error)) {
	s.background.Post(func() {
		err := work()
		s.token.Post(s.runner, func() { done(err) })
	})
}

func sameTimes(a, b map[string]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for id, at := range a {
		other, ok := b[id]
		if !ok || !other.Equal(at) {
			return false
		}
	}
	return true
}

var _ Directory = (*Storage)(nil)
