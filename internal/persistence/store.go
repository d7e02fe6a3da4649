// Package persistence implements the Persisted state described in
// spec.md §6: a settings/recent-files/window-geometry record, plus a
// playback-resume-position table supplementing the distilled spec (the
// original mrv2 source keeps a recent-files/bookmark concept and
// resumes playback from the last position per timeline; the
// distillation dropped the resume behavior but kept the recent-files
// list).
//
// Grounded on the teacher's gorm/sqlite usage in
// data/plugins/audiodb_enricher/main.go (single gorm.Open + AutoMigrate
// against a small set of models, no connection-pool tuning) rather than
// the heavier internal/database bootstrap, since this module's
// persistence surface is a handful of small tables, not a multi-tenant
// media library.
package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mantonx/tlplay/internal/config"
	"github.com/mantonx/tlplay/internal/ioerrors"
	"github.com/mantonx/tlplay/internal/logger"
)

// Settings is the singleton row holding window geometry and whatever
// other core-consumed settings the host process wants round-tripped.
// The core treats everything beyond geometry as opaque: spec.md §6
// says "the core consumes settings but does not own their file format
// beyond JSON round-trip," so RawJSON carries the rest verbatim.
type Settings struct {
	ID              uint `gorm:"primaryKey"`
	WindowX         int
	WindowY         int
	WindowWidth     int
	WindowHeight    int
	WindowMaximized bool
	RawJSON         string
	UpdatedAt       time.Time
}

// RecentFile is one entry in the recent-files list, most-recently-opened
// first.
type RecentFile struct {
	ID           uint   `gorm:"primaryKey"`
	Path         string `gorm:"uniqueIndex;not null"`
	LastOpenedAt time.Time
}

// ResumePosition records the last-played time per timeline path, the
// supplemented playback-resume feature: mrv2 reopens a timeline at
// wherever playback last stopped rather than at zero.
type ResumePosition struct {
	ID              uint   `gorm:"primaryKey"`
	TimelinePath    string `gorm:"uniqueIndex;not null"`
	PositionSeconds float64
	UpdatedAt       time.Time
}

// MaxRecentFiles bounds the recent-files list; the oldest entries are
// evicted once the list grows past this.
const MaxRecentFiles = 20

// Store is the sqlite-backed persistence layer. Construct with Open.
type Store struct {
	db  *gorm.DB
	log hclog.Logger
}

// Open creates the data directory if needed, opens the sqlite database
// at cfg.DatabasePath, and migrates the schema.
func Open(cfg config.PersistenceConfig) (*Store, error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, ioerrors.Wrap(ioerrors.KindDevice, "persistence", "create data dir", err)
		}
	}

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "tlplay.db")
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, ioerrors.Wrap(ioerrors.KindDevice, "persistence", "open database", err)
	}

	if err := db.AutoMigrate(&Settings{}, &RecentFile{}, &ResumePosition{}); err != nil {
		return nil, ioerrors.Wrap(ioerrors.KindDevice, "persistence", "migrate schema", err)
	}

	return &Store{db: db, log: logger.Named("persistence")}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetSettings returns the singleton settings row, creating it with zero
// values if it does not exist yet.
func (s *Store) GetSettings() (Settings, error) {
	var settings Settings
	err := s.db.FirstOrCreate(&settings, Settings{ID: 1}).Error
	if err != nil {
		return Settings{}, ioerrors.Wrap(ioerrors.KindDevice, "persistence", "load settings", err)
	}
	return settings, nil
}

// SaveWindowGeometry persists the window position/size/maximized state.
func (s *Store) SaveWindowGeometry(x, y, width, height int, maximized bool) error {
	settings, err := s.GetSettings()
	if err != nil {
		return err
	}
	settings.WindowX, settings.WindowY = x, y
	settings.WindowWidth, settings.WindowHeight = width, height
	settings.WindowMaximized = maximized
	settings.UpdatedAt = time.Now()
	if err := s.db.Save(&settings).Error; err != nil {
		return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "save window geometry", err)
	}
	return nil
}

// SaveRawSettings overwrites the opaque settings payload the core does
// not interpret beyond JSON round-trip (spec.md §6).
func (s *Store) SaveRawSettings(raw string) error {
	settings, err := s.GetSettings()
	if err != nil {
		return err
	}
	settings.RawJSON = raw
	settings.UpdatedAt = time.Now()
	if err := s.db.Save(&settings).Error; err != nil {
		return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "save raw settings", err)
	}
	return nil
}

// AddRecentFile records path as the most recently opened file, evicting
// the oldest entry once the list exceeds MaxRecentFiles.
func (s *Store) AddRecentFile(path string) error {
	entry := RecentFile{Path: path, LastOpenedAt: time.Now()}
	err := s.db.Clauses(onConflictUpdateLastOpened()).Create(&entry).Error
	if err != nil {
		return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "add recent file", err)
	}

	var count int64
	if err := s.db.Model(&RecentFile{}).Count(&count).Error; err != nil {
		return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "count recent files", err)
	}
	if count <= MaxRecentFiles {
		return nil
	}

	var stale []RecentFile
	if err := s.db.Order("last_opened_at ASC").Limit(int(count - MaxRecentFiles)).Find(&stale).Error; err != nil {
		return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "find stale recent files", err)
	}
	for _, f := range stale {
		if err := s.db.Delete(&f).Error; err != nil {
			return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "evict recent file", err)
		}
	}
	return nil
}

// RecentFiles returns up to limit recent-files entries, most recently
// opened first.
func (s *Store) RecentFiles(limit int) ([]RecentFile, error) {
	var files []RecentFile
	q := s.db.Order("last_opened_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&files).Error; err != nil {
		return nil, ioerrors.Wrap(ioerrors.KindDevice, "persistence", "list recent files", err)
	}
	return files, nil
}

// SaveResumePosition records timelinePath's last-played time so a
// future open can resume from it.
func (s *Store) SaveResumePosition(timelinePath string, seconds float64) error {
	entry := ResumePosition{TimelinePath: timelinePath, PositionSeconds: seconds, UpdatedAt: time.Now()}
	err := s.db.Clauses(onConflictUpdatePosition()).Create(&entry).Error
	if err != nil {
		return ioerrors.Wrap(ioerrors.KindDevice, "persistence", "save resume position", err)
	}
	return nil
}

// ResumePosition returns the last-saved position for timelinePath.
// Returns ioerrors.ErrNotFound if no position has been saved for it.
func (s *Store) ResumePosition(timelinePath string) (float64, error) {
	var entry ResumePosition
	err := s.db.Where("timeline_path = ?", timelinePath).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ioerrors.New(ioerrors.KindNotFound, "persistence", "no resume position for "+timelinePath)
	}
	if err != nil {
		return 0, ioerrors.Wrap(ioerrors.KindDevice, "persistence", "load resume position", err)
	}
	return entry.PositionSeconds, nil
}
