package retry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// DLQConfig configures the failed-batch journal.
type DLQConfig struct {
	// FilePath is the JSON file the journal is kept in.
	FilePath string

	// Truncate empties the file on open instead of loading previous entries.
	Truncate bool

	// MaxSize caps the number of entries; the oldest are dropped first.
	MaxSize int
}

// DLQEntry is one batch (or record) that could not be written.
type DLQEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Target      string    `json:"target"`
	Batch       int       `json:"batch"`
	LastError   string    `json:"last_error"`
	FailureType string    `json:"failure_type"` // batch_submit_failed, format_failed
	Data        any       `json:"data,omitempty"`
}

// DLQ keeps the records of failed batches on disk so an aborted import can be
// inspected after the run.
type DLQ struct {
	mu      sync.RWMutex
	config  DLQConfig
	entries []DLQEntry
	counter int
}

// NewDLQ opens the journal file, loading or truncating it.
func NewDLQ(config DLQConfig) (*DLQ, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("dlq file path is required")
	}

	dlq := &DLQ{
		config:  config,
		entries: make([]DLQEntry, 0),
	}

	if config.Truncate {
		if err := dlq.Save(); err != nil {
			return nil, err
		}
		return dlq, nil
	}

	if _, err := os.Stat(config.FilePath); err == nil {
		if err := dlq.Load(); err != nil {
			return nil, fmt.Errorf("failed to load DLQ: %w", err)
		}
	}

	return dlq, nil
}

// Add appends an entry and persists the journal.
func (d *DLQ) Add(entry DLQEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counter++
	entry.ID = fmt.Sprintf("dlq-%d-%d", time.Now().Unix(), d.counter)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	d.entries = append(d.entries, entry)

	if d.config.MaxSize > 0 && len(d.entries) > d.config.MaxSize {
		d.entries = d.entries[len(d.entries)-d.config.MaxSize:]
	}

	return d.saveUnsafe()
}

// Get returns a copy of all entries.
func (d *DLQ) Get() []DLQEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]DLQEntry, len(d.entries))
	copy(result, d.entries)
	return result
}

// Size returns the number of entries.
func (d *DLQ) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Save writes the journal to disk.
func (d *DLQ) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveUnsafe()
}

// saveUnsafe expects d.mu to be held.
func (d *DLQ) saveUnsafe() error {
	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ: %w", err)
	}

	if err := os.WriteFile(d.config.FilePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write DLQ file: %w", err)
	}

	return nil
}

// Load reads the journal from disk.
func (d *DLQ) Load() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read DLQ file: %w", err)
	}

	var entries []DLQEntry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("failed to unmarshal DLQ: %w", err)
		}
	}

	d.entries = entries
	return nil
}
