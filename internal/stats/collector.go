// Package stats tracks server activity with lock-free atomic counters.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector accumulates protocol activity across all sessions. Safe for
// concurrent use by session goroutines.
type Collector struct {
	sessionsOpened   atomic.Int64
	sessionsClosed   atomic.Int64
	commandsHandled  atomic.Int64
	commandsRejected atomic.Int64
	filesSent        atomic.Int64
	filesReceived    atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	transfersFailed  atomic.Int64
	startTime        time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddSessionOpened()       { c.sessionsOpened.Add(1) }
func (c *Collector) AddSessionClosed()       { c.sessionsClosed.Add(1) }
func (c *Collector) AddCommandHandled()      { c.commandsHandled.Add(1) }
func (c *Collector) AddCommandRejected()     { c.commandsRejected.Add(1) }
func (c *Collector) AddFileSent(n int64)     { c.filesSent.Add(1); c.bytesSent.Add(n) }
func (c *Collector) AddFileReceived(n int64) { c.filesReceived.Add(1); c.bytesReceived.Add(n) }
func (c *Collector) AddTransferFailed()      { c.transfersFailed.Add(1) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	SessionsOpened   int64
	SessionsClosed   int64
	CommandsHandled  int64
	CommandsRejected int64
	FilesSent        int64
	FilesReceived    int64
	BytesSent        int64
	BytesReceived    int64
	TransfersFailed  int64
	Elapsed          time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		SessionsOpened:   c.sessionsOpened.Load(),
		SessionsClosed:   c.sessionsClosed.Load(),
		CommandsHandled:  c.commandsHandled.Load(),
		CommandsRejected: c.commandsRejected.Load(),
		FilesSent:        c.filesSent.Load(),
		FilesReceived:    c.filesReceived.Load(),
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesReceived.Load(),
		TransfersFailed:  c.transfersFailed.Load(),
		Elapsed:          time.Since(c.startTime),
	}
}
