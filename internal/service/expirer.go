package service

import (
	"sync"
	"time"

	"github.com/Harshitk-cp/causal/internal/metrics"
	"go.uber.org/zap"
)

const defaultExpirerInterval = 1 * time.Minute

// ExpirerService periodically drops expired effect cache entries. Expired
// entries are never served either way; this only returns their memory early.
type ExpirerService struct {
	cache   *EffectCache
	metrics *metrics.Metrics
	logger  *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewExpirerService(c *EffectCache, m *metrics.Metrics, logger *zap.Logger) *ExpirerService {
	return &ExpirerService{
		cache:    c,
		metrics:  m,
		logger:   logger,
		interval: defaultExpirerInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("cache expirer started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopCh:
				s.logger.Info("cache expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer.
func (s *ExpirerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// RunOnce removes expired entries and returns how many were dropped.
func (s *ExpirerService) RunOnce() int {
	if s.cache == nil {
		return 0
	}
	removed := s.cache.CleanupExpired()
	if removed > 0 {
		if s.metrics != nil {
			s.metrics.JanitorRemoved.Add(float64(removed))
		}
		s.logger.Debug("expired cached effects", zap.Int("count", removed))
	}
	return removed
}
