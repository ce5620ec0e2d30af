package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"
)

// DefaultDataset is the dataset ID used for session records and mirrored files.
const DefaultDataset = "sessions"

// Partition keys of the session dataset, in layout order.
var partitionKeys = []string{"day", "detector", "session_id"}

// DeriveDay computes the partition day from the session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(start time.Time) string {
	return start.UTC().Format("2006-01-02")
}

// Config identifies the partition a session writes to.
type Config struct {
	// Dataset is the Lode dataset ID (DefaultDataset when empty).
	Dataset string
	// Detector is the partition key for the detector name.
	Detector string
	// Day is the partition key derived from session start (YYYY-MM-DD UTC).
	Day string
	// SessionID is the partition key for the session identifier.
	SessionID string
}

func (c Config) dataset() string {
	if c.Dataset == "" {
		return DefaultDataset
	}
	return c.Dataset
}

// Validate checks that all partition keys are set and usable as path segments.
func (c Config) Validate() error {
	for key, v := range map[string]string{"detector": c.Detector, "day": c.Day, "session_id": c.SessionID} {
		if v == "" {
			return fmt.Errorf("lode config: %s is required", key)
		}
		if strings.ContainsAny(v, "/\\") || v == "." || v == ".." {
			return fmt.Errorf("lode config: %s %q is not a valid path segment", key, v)
		}
	}
	return nil
}

// Client writes session records and mirrored files to a Lode store.
type Client struct {
	dataset      lode.Dataset
	config       Config
	storeFactory lode.StoreFactory

	storeOnce sync.Once
	store     lode.Store
	storeErr  error
}

// NewClient creates a client with filesystem storage rooted at root.
func NewClient(cfg Config, root string) (*Client, error) {
	return NewClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewClientWithFactory creates a client over a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewClientWithFactory(cfg Config, factory lode.StoreFactory) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := NewReadDataset(cfg.dataset(), factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.dataset())
	}
	return &Client{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}, nil
}

// WriteSession appends one session record to the dataset.
func (c *Client) WriteSession(ctx context.Context, rec SessionRecord) error {
	rec.Day = c.config.Day
	rec.Detector = c.config.Detector
	rec.SessionID = c.config.SessionID

	m, err := rec.toMap()
	if err != nil {
		return err
	}
	if _, err := c.dataset.Write(ctx, []any{m}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.dataset()+"/session_id="+c.config.SessionID)
	}
	return nil
}

// PutFile writes a file under the session partition's files/ prefix.
// The filename must not contain path separators or "..".
func (c *Client) PutFile(ctx context.Context, filename, _ string, data []byte) error {
	if filename == "" || strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return fmt.Errorf("invalid mirror filename %q", filename)
	}

	store, err := c.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, c.config.dataset())
	}

	path := c.FilePath(filename)
	if err := store.Put(ctx, path, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, path)
	}
	return nil
}

// FilePath returns the store path of a mirrored file.
// Format: datasets/<dataset>/partitions/day=<d>/detector=<det>/session_id=<id>/files/<filename>
func (c *Client) FilePath(filename string) string {
	return fmt.Sprintf("datasets/%s/partitions/day=%s/detector=%s/session_id=%s/files/%s",
		c.config.dataset(),
		c.config.Day,
		c.config.Detector,
		c.config.SessionID,
		filename,
	)
}

func (c *Client) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
		if c.storeErr == nil && c.store == nil {
			c.storeErr = errors.New("store factory returned nil store")
		}
	})
	return c.store, c.storeErr
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}

var _ FileWriter = (*Client)(nil)
