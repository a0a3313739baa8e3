package workflow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dubber/internal/config"
	"dubber/internal/notifications"
	"dubber/internal/store"
)

// Manager coordinates pipeline processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	errorRetry   time.Duration
	holder       string
	lockTTL      time.Duration
	retryLimit   int
	retryBackoff time.Duration

	heartbeat *HeartbeatMonitor

	tables map[store.Mode]*stageTable
	watch  []store.Status

	mu        sync.RWMutex
	running   bool
	cancel    func()
	wg        sync.WaitGroup
	lastErr   error
	lastVideo *store.Video
	retries   map[string]int
}

// NewManager constructs a workflow manager with the default notifier.
func NewManager(cfg *config.Config, st *store.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, st, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        st,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		holder:       uuid.NewString(),
		lockTTL:      time.Duration(cfg.Pipeline.StageLockSeconds) * time.Second,
		retryLimit:   cfg.Workflow.StageRetryLimit,
		retryBackoff: time.Duration(cfg.Workflow.StageRetryBackoff) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			st,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		tables:  make(map[store.Mode]*stageTable),
		retries: make(map[string]int),
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastVideo(video *store.Video) {
	m.mu.Lock()
	if video != nil {
		copy := *video
		m.lastVideo = &copy
	} else {
		m.lastVideo = nil
	}
	m.mu.Unlock()
}
