package metrics

import (
	"time"

	"media-optimizer/internal/logging"
)

// StatsProvider interface for collecting cache stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current cache statistics
type Stats struct {
	Entries int
	Bytes   int64
}

// Collector periodically samples cache size while a build runs
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the collection loop after taking a final sample
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			c.collect()
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CacheEntries.Set(float64(stats.Entries))
	CacheSizeBytes.Set(float64(stats.Bytes))

	logging.Debug("Metrics collected: cache entries=%d, bytes=%d", stats.Entries, stats.Bytes)
}
