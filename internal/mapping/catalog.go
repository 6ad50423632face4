package mapping

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"anilink/internal/fileutil"
	"anilink/internal/textutil"
)

// Rule pins filenames or parsed titles to curated show metadata.
type Rule struct {
	Filenames     []string `json:"filenames,omitempty"`
	Titles        []string `json:"titles,omitempty"`
	ShowID        int64    `json:"show_id"`
	Season        int      `json:"season,omitempty"`
	Episode       int      `json:"episode,omitempty"`
	EpisodeOffset int      `json:"episode_offset,omitempty"`
	Note          string   `json:"note,omitempty"`
}

// Catalog loads resolution rules from a user-maintained JSON file.
type Catalog struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	loaded  time.Time
	entries []Rule
}

// NewCatalog constructs a catalog backed by the provided JSON file. An empty
// path returns nil, and a nil catalog reports no matches.
func NewCatalog(path string, logger *slog.Logger) *Catalog {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{path: trimmed, logger: logger}
}

// Lookup returns the first rule matching the filename or the parsed title.
// Filenames match exactly after trimming; titles match on normalized text.
func (c *Catalog) Lookup(filename, title string) (Rule, bool, error) {
	if c == nil || strings.TrimSpace(c.path) == "" {
		return Rule{}, false, nil
	}
	if err := c.ensureLoaded(); err != nil {
		return Rule{}, false, err
	}
	name := strings.TrimSpace(filename)
	normalized := textutil.NormalizeTitle(title)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entry := range c.entries {
		if entry.ShowID <= 0 {
			continue
		}
		if entry.matches(name, normalized) {
			return entry, true, nil
		}
	}
	return Rule{}, false, nil
}

// Add appends a rule and persists the catalog. The rule must carry a positive
// show ID and at least one filename or title to match on.
func (c *Catalog) Add(rule Rule) error {
	if c == nil || strings.TrimSpace(c.path) == "" {
		return errors.New("mapping catalog path not configured")
	}
	rule.normalize()
	if rule.ShowID <= 0 {
		return errors.New("mapping rule requires a positive show id")
	}
	if len(rule.Filenames) == 0 && len(rule.Titles) == 0 {
		return errors.New("mapping rule requires a filename or title to match")
	}
	if err := c.ensureLoaded(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := append(append([]Rule(nil), c.entries...), rule)
	if err := c.save(entries); err != nil {
		return err
	}
	c.entries = entries
	if c.logger != nil {
		c.logger.Info("added mapping rule",
			slog.String("path", c.path),
			slog.Int64("show_id", rule.ShowID),
			slog.Int("rule_count", len(entries)))
	}
	return nil
}

// Rules returns a copy of the loaded rules.
func (c *Catalog) Rules() ([]Rule, error) {
	if c == nil || strings.TrimSpace(c.path) == "" {
		return nil, nil
	}
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Rule(nil), c.entries...), nil
}

func (c *Catalog) ensureLoaded() error {
	c.mu.RLock()
	path := c.path
	c.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	c.mu.RLock()
	alreadyLoaded := !c.loaded.IsZero() && c.loaded.Equal(info.ModTime())
	c.mu.RUnlock()
	if alreadyLoaded {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	entries, err := parseRules(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = entries
	c.loaded = info.ModTime()
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("loaded mapping rules", slog.String("path", path), slog.Int("count", len(entries)))
	}
	return nil
}

func (c *Catalog) save(entries []Rule) error {
	wrapper := struct {
		Rules []Rule `json:"rules"`
	}{Rules: entries}
	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return err
	}
	if info, err := os.Stat(c.path); err == nil {
		c.loaded = info.ModTime()
	}
	return nil
}

func parseRules(data []byte) ([]Rule, error) {
	data = bytesTrimUTF8BOM(data)
	if len(bytesTrimSpace(data)) == 0 {
		return nil, nil
	}
	var entries []Rule
	// Accept either array or object with rules field.
	if len(data) > 0 && data[0] == '{' {
		var wrapper struct {
			Rules []Rule `json:"rules"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, err
		}
		entries = wrapper.Rules
	} else {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	}
	normalized := make([]Rule, 0, len(entries))
	for _, entry := range entries {
		entry.normalize()
		normalized = append(normalized, entry)
	}
	return normalized, nil
}

func (r *Rule) matches(filename, normalizedTitle string) bool {
	for _, name := range r.Filenames {
		if name != "" && name == filename {
			return true
		}
	}
	for _, title := range r.Titles {
		if title != "" && title == normalizedTitle {
			return true
		}
	}
	return false
}

func (r *Rule) normalize() {
	r.Note = strings.TrimSpace(r.Note)
	names := make([]string, 0, len(r.Filenames))
	for _, name := range r.Filenames {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		names = append(names, trimmed)
	}
	r.Filenames = names
	titles := make([]string, 0, len(r.Titles))
	for _, title := range r.Titles {
		normalized := textutil.NormalizeTitle(title)
		if normalized == "" {
			continue
		}
		titles = append(titles, normalized)
	}
	r.Titles = titles
}

func bytesTrimUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

func bytesTrimSpace(data []byte) []byte {
	start := 0
	for start < len(data) && (data[start] == ' ' || data[start] == '\n' || data[start] == '\t' || data[start] == '\r') {
		start++
	}
	end := len(data)
	for end > start && (data[end-1] == ' ' || data[end-1] == '\n' || data[end-1] == '\t' || data[end-1] == '\r') {
		end--
	}
	return data[start:end]
}
