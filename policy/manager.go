package policy

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Manager owns the single writable RouterRules snapshot and hands out
// copy-on-write reads. It is the single writer; RulesSnapshot is safe for
// concurrent, lock-free reads via atomic.Value.
type Manager struct {
	logger *zap.Logger

	rulesPath string

	snapshot atomic.Value // holds Rules

	mu        sync.Mutex // serializes reload attempts only
	lastMTime time.Time
	lastErr   error
}

// NewManager builds a Manager seeded with defaults overlaid by environment
// variables, then attempts one load of the rules file if a path is given.
func NewManager(rulesPath string, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:    logger.With(zap.String("component", "policy")),
		rulesPath: rulesPath,
	}
	base := envOverlay(defaultRules())
	m.snapshot.Store(base)
	if rulesPath != "" {
		m.reload()
	}
	return m
}

// RulesSnapshot returns the current rules, reloading from the rules file
// first if its mtime has advanced since the last read. A malformed or
// unreadable file keeps the last good snapshot and logs a warning; this
// check is a cheap os.Stat so it is safe to call per-request.
func (m *Manager) RulesSnapshot() Rules {
	if m.rulesPath != "" {
		m.maybeReload()
	}
	return m.snapshot.Load().(Rules)
}

func (m *Manager) maybeReload() {
	mtime, err := statMTime(m.rulesPath)
	if err != nil {
		return
	}
	m.mu.Lock()
	changed := !mtime.Equal(m.lastMTime)
	m.mu.Unlock()
	if changed {
		m.reload()
	}
}

func (m *Manager) reload() {
	f, mtime, err := loadRulesFile(m.rulesPath)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if m.lastErr == nil || m.lastErr.Error() != err.Error() {
			m.logger.Warn("rules file reload failed, keeping last good snapshot",
				zap.String("path", m.rulesPath), zap.Error(err))
		}
		m.lastErr = err
		return
	}
	base := envOverlay(defaultRules())
	merged := applyFile(base, f)
	m.snapshot.Store(merged)
	m.lastMTime = mtime
	m.lastErr = nil
	m.logger.Info("rules file reloaded", zap.String("path", m.rulesPath), zap.Time("mtime", mtime))
}

