package showcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"anilink/internal/fileutil"
	"anilink/internal/logging"
	"anilink/internal/textutil"
)

// Entry caches the resolved show record for one TMDB show.
type Entry struct {
	ShowID          int64     `json:"show_id"`
	Title           string    `json:"title"`
	OriginalTitle   string    `json:"original_title,omitempty"`
	Overview        string    `json:"overview,omitempty"`
	FirstAirDate    string    `json:"first_air_date,omitempty"`
	PosterPath      string    `json:"poster_path,omitempty"`
	VoteAverage     float64   `json:"vote_average,omitempty"`
	NumberOfSeasons int       `json:"number_of_seasons,omitempty"`
	CachedAt        time.Time `json:"cached_at"`
}

// EpisodeRecord caches one episode of a cached season.
type EpisodeRecord struct {
	Number      int     `json:"number"`
	Name        string  `json:"name,omitempty"`
	Overview    string  `json:"overview,omitempty"`
	AirDate     string  `json:"air_date,omitempty"`
	VoteAverage float64 `json:"vote_average,omitempty"`
	StillPath   string  `json:"still_path,omitempty"`
}

// SeasonRecord caches the episode list for one season of a show.
type SeasonRecord struct {
	ShowID   int64           `json:"show_id"`
	Season   int             `json:"season"`
	AirDate  string          `json:"air_date,omitempty"`
	Episodes []EpisodeRecord `json:"episodes,omitempty"`
	CachedAt time.Time       `json:"cached_at"`
}

// Episode returns the cached entry for the given episode number, if present.
func (r SeasonRecord) Episode(number int) (EpisodeRecord, bool) {
	for _, episode := range r.Episodes {
		if episode.Number == number {
			return episode, true
		}
	}
	return EpisodeRecord{}, false
}

type queryRef struct {
	ShowID   int64     `json:"show_id"`
	CachedAt time.Time `json:"cached_at"`
}

type cacheFile struct {
	Shows   []Entry             `json:"shows"`
	Seasons []SeasonRecord      `json:"seasons,omitempty"`
	Queries map[string]queryRef `json:"queries,omitempty"`
}

// Cache provides thread-safe access to the show lookup cache.
type Cache struct {
	path    string
	ttl     time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	shows   map[int64]Entry
	seasons map[string]SeasonRecord
	queries map[string]queryRef
}

// New creates a cache instance backed by the given file. An empty path makes
// every operation a no-op. A non-positive TTL disables expiry. The cache file
// is created lazily on first store.
func New(path string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "showcache")

	c := &Cache{
		path:    path,
		ttl:     ttl,
		logger:  logger,
		shows:   make(map[int64]Entry),
		seasons: make(map[string]SeasonRecord),
		queries: make(map[string]queryRef),
	}

	if path == "" {
		return c
	}

	if err := c.load(); err != nil {
		logger.Warn("failed to load show cache; starting empty",
			logging.String("path", path),
			logging.Error(err))
	}

	return c
}

// QueryKey builds the normalized lookup key for a search query and season.
// Season is part of the key because sequel seasons sometimes resolve to a
// different show entry than the first season of the same title.
func QueryKey(query string, season int) string {
	return fmt.Sprintf("%s|s%d", textutil.NormalizeTitle(query), season)
}

// LookupShow returns the cached entry for a show ID, missing when expired.
func (c *Cache) LookupShow(showID int64) (Entry, bool) {
	if showID <= 0 || c.path == "" {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, found := c.shows[showID]
	if !found || !c.fresh(entry.CachedAt) {
		return Entry{}, false
	}
	return entry, true
}

// LookupQuery resolves a search query and season to a cached show entry. Both
// the query index record and the show entry it points at must be fresh.
func (c *Cache) LookupQuery(query string, season int) (Entry, bool) {
	if strings.TrimSpace(query) == "" || c.path == "" {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ref, found := c.queries[QueryKey(query, season)]
	if !found || !c.fresh(ref.CachedAt) {
		return Entry{}, false
	}
	entry, found := c.shows[ref.ShowID]
	if !found || !c.fresh(entry.CachedAt) {
		return Entry{}, false
	}
	return entry, true
}

// StoreShow adds or refreshes a show entry and persists the cache.
func (c *Cache) StoreShow(entry Entry) error {
	if entry.ShowID <= 0 {
		return errors.New("show id must be positive")
	}
	if c.path == "" {
		return nil
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.shows[entry.ShowID] = entry

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cached show lookup",
		logging.Int64("show_id", entry.ShowID),
		logging.String("title", entry.Title))

	return nil
}

// LookupSeason returns the cached season record, missing when expired.
func (c *Cache) LookupSeason(showID int64, season int) (SeasonRecord, bool) {
	if showID <= 0 || season < 0 || c.path == "" {
		return SeasonRecord{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	record, found := c.seasons[seasonKey(showID, season)]
	if !found || !c.fresh(record.CachedAt) {
		return SeasonRecord{}, false
	}
	return record, true
}

// StoreSeason adds or refreshes a season record and persists the cache.
func (c *Cache) StoreSeason(record SeasonRecord) error {
	if record.ShowID <= 0 {
		return errors.New("show id must be positive")
	}
	if record.Season < 0 {
		return errors.New("season must not be negative")
	}
	if c.path == "" {
		return nil
	}
	if record.CachedAt.IsZero() {
		record.CachedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seasons[seasonKey(record.ShowID, record.Season)] = record

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cached season episodes",
		logging.Int64("show_id", record.ShowID),
		logging.Int("season", record.Season),
		logging.Int("episode_count", len(record.Episodes)))

	return nil
}

// StoreQuery records that a search query and season resolved to a show ID.
func (c *Cache) StoreQuery(query string, season int, showID int64) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query cannot be empty")
	}
	if showID <= 0 {
		return errors.New("show id must be positive")
	}
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries[QueryKey(query, season)] = queryRef{ShowID: showID, CachedAt: time.Now().UTC()}

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

// Prune drops expired show entries and query records, along with query
// records whose show entry is gone, and reports how many were removed.
func (c *Cache) Prune() (int, error) {
	if c.path == "" || c.ttl <= 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.shows {
		if !c.fresh(entry.CachedAt) {
			delete(c.shows, id)
			removed++
		}
	}
	for key, record := range c.seasons {
		if _, ok := c.shows[record.ShowID]; !ok || !c.fresh(record.CachedAt) {
			delete(c.seasons, key)
			removed++
		}
	}
	for key, ref := range c.queries {
		if _, ok := c.shows[ref.ShowID]; !ok || !c.fresh(ref.CachedAt) {
			delete(c.queries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	if err := c.save(); err != nil {
		return removed, fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("pruned expired show cache entries", logging.Int("removed", removed))
	return removed, nil
}

// Count returns the number of cached show entries.
func (c *Cache) Count() int {
	if c.path == "" {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.shows)
}

// List returns all show entries sorted by CachedAt descending.
func (c *Cache) List() []Entry {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.shows))
	for _, entry := range c.shows {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})

	return entries
}

// Clear removes all entries and persists the empty cache.
func (c *Cache) Clear() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.shows = make(map[int64]Entry)
	c.seasons = make(map[string]SeasonRecord)
	c.queries = make(map[string]queryRef)

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cleared show cache")
	return nil
}

func (c *Cache) fresh(at time.Time) bool {
	if c.ttl <= 0 {
		return true
	}
	return time.Since(at) < c.ttl
}

func seasonKey(showID int64, season int) string {
	return fmt.Sprintf("%d|%d", showID, season)
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var payload cacheFile
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}

	c.shows = make(map[int64]Entry, len(payload.Shows))
	for _, entry := range payload.Shows {
		if entry.ShowID > 0 {
			c.shows[entry.ShowID] = entry
		}
	}
	c.seasons = make(map[string]SeasonRecord, len(payload.Seasons))
	for _, record := range payload.Seasons {
		if record.ShowID > 0 {
			c.seasons[seasonKey(record.ShowID, record.Season)] = record
		}
	}
	c.queries = make(map[string]queryRef, len(payload.Queries))
	for key, ref := range payload.Queries {
		if ref.ShowID > 0 {
			c.queries[key] = ref
		}
	}

	c.logger.Debug("loaded show cache",
		logging.Int("show_count", len(c.shows)),
		logging.String("path", c.path))

	return nil
}

func (c *Cache) save() error {
	entries := make([]Entry, 0, len(c.shows))
	for _, entry := range c.shows {
		entries = append(entries, entry)
	}

	// Sort for deterministic output
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})

	seasons := make([]SeasonRecord, 0, len(c.seasons))
	for _, record := range c.seasons {
		seasons = append(seasons, record)
	}
	sort.Slice(seasons, func(i, j int) bool {
		if seasons[i].ShowID != seasons[j].ShowID {
			return seasons[i].ShowID < seasons[j].ShowID
		}
		return seasons[i].Season < seasons[j].Season
	})

	data, err := json.MarshalIndent(cacheFile{Shows: entries, Seasons: seasons, Queries: c.queries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	return nil
}
