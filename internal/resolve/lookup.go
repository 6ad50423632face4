package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"anilink/internal/logging"
	"anilink/internal/parse"
	"anilink/internal/queue"
	"anilink/internal/resolve/tmdb"
	"anilink/internal/services"
	"anilink/internal/showcache"
)

// resolveCandidate runs the full lookup chain for one candidate: mapping
// rules, then the show cache, then a scored TMDB search, then the season's
// episode list. It returns the metadata record stored on the queue item.
func (r *Resolver) resolveCandidate(ctx context.Context, logger *slog.Logger, filename string, candidate parse.Candidate, modTime time.Time) (queue.Metadata, error) {
	season := candidate.Season
	episode := candidate.Episode

	var entry showcache.Entry
	var pinned bool

	rule, matched, err := r.mappings.Lookup(filename, candidate.Title)
	if err != nil {
		logger.Warn("mapping catalog lookup failed", logging.Error(err))
	}
	if matched {
		if rule.Season > 0 {
			season = rule.Season
		}
		switch {
		case rule.Episode > 0:
			episode = rule.Episode
		case rule.EpisodeOffset != 0:
			episode = candidate.Episode - rule.EpisodeOffset
		}
		logger.Info(
			"mapping rule pinned show",
			logging.Int64("show_id", rule.ShowID),
			logging.Int("season", season),
			logging.Int("episode", episode),
		)
		if episode <= 0 {
			return queue.Metadata{}, services.Wrap(
				services.ErrValidation,
				"resolving",
				"apply mapping rule",
				fmt.Sprintf("Mapping rule for %q yields episode %d; fix the rule's episode offset", candidate.Title, episode),
				nil,
			)
		}
		entry, err = r.showByID(ctx, logger, rule.ShowID)
		if err != nil {
			return queue.Metadata{}, err
		}
		pinned = true
	}

	if episode <= 0 {
		return queue.Metadata{}, services.Wrap(
			services.ErrValidation,
			"resolving",
			"validate candidate",
			fmt.Sprintf("Candidate %q has no episode number; rename the file or add a mapping rule", candidate.Title),
			nil,
		)
	}

	if !pinned {
		if cached, ok := r.cache.LookupQuery(candidate.Title, season); ok {
			logger.Info(
				"show cache hit",
				logging.Int64("show_id", cached.ShowID),
				logging.String("title", cached.Title),
			)
			entry = cached
		} else {
			entry, err = r.searchShow(ctx, logger, candidate, season, modTime)
			if err != nil {
				return queue.Metadata{}, err
			}
		}
	}

	record, err := r.seasonRecord(ctx, logger, entry, season)
	if err != nil {
		return queue.Metadata{}, err
	}

	episodeRecord, ok := record.Episode(episode)
	if !ok {
		return queue.Metadata{}, services.Wrap(
			services.ErrNotFound,
			"resolving",
			"find episode",
			fmt.Sprintf("%s season %d has no episode %d; check the numbering or add a mapping rule", entry.Title, season, episode),
			nil,
		)
	}

	return queue.Metadata{
		ShowID:          entry.ShowID,
		ShowTitle:       entry.Title,
		OriginalTitle:   entry.OriginalTitle,
		Overview:        entry.Overview,
		FirstAirDate:    entry.FirstAirDate,
		Rating:          entry.VoteAverage,
		PosterURL:       r.imageURL(entry.PosterPath),
		Season:          season,
		Episode:         episode,
		EpisodeTitle:    episodeRecord.Name,
		EpisodeOverview: episodeRecord.Overview,
		EpisodeAirDate:  episodeRecord.AirDate,
		EpisodeRating:   episodeRecord.VoteAverage,
		StillURL:        r.imageURL(episodeRecord.StillPath),
	}, nil
}

// searchShow resolves a candidate title through TMDB search and scoring, then
// caches the winner under both its show ID and the query text.
func (r *Resolver) searchShow(ctx context.Context, logger *slog.Logger, candidate parse.Candidate, season int, modTime time.Time) (showcache.Entry, error) {
	if r.searcher == nil {
		return showcache.Entry{}, services.Wrap(
			services.ErrConfiguration,
			"resolving",
			"search shows",
			"TMDB client unavailable; set tmdb.api_key",
			nil,
		)
	}

	response, err := r.searchWithRetry(ctx, logger, candidate.Title, tmdb.SearchOptions{Year: candidate.Year})
	if err != nil {
		return showcache.Entry{}, wrapLookupFailure("search shows", candidate.Title, err)
	}

	details, err := r.pickShow(ctx, logger, candidate.Title, season, modTime, response)
	if err != nil {
		return showcache.Entry{}, err
	}
	if details == nil {
		if candidate.Confidence == parse.ConfidenceLow {
			return showcache.Entry{}, services.Wrap(
				services.ErrParse,
				"resolving",
				"match show",
				fmt.Sprintf("No show matched low-confidence guess %q; rename the file or add a mapping rule", candidate.Title),
				nil,
			)
		}
		return showcache.Entry{}, services.Wrap(
			services.ErrNotFound,
			"resolving",
			"match show",
			fmt.Sprintf("No show matched %q; add a mapping rule to pin it", candidate.Title),
			nil,
		)
	}

	entry := entryFromDetails(details)
	if err := r.cache.StoreShow(entry); err != nil {
		logger.Warn("failed to cache show entry", logging.Error(err))
	}
	if err := r.cache.StoreQuery(candidate.Title, season, entry.ShowID); err != nil {
		logger.Warn("failed to index show query", logging.Error(err))
	}
	return entry, nil
}

// showByID fetches a show pinned by a mapping rule, preferring the cache.
func (r *Resolver) showByID(ctx context.Context, logger *slog.Logger, showID int64) (showcache.Entry, error) {
	if entry, ok := r.cache.LookupShow(showID); ok {
		return entry, nil
	}
	if r.searcher == nil {
		return showcache.Entry{}, services.Wrap(
			services.ErrConfiguration,
			"resolving",
			"fetch show",
			"TMDB client unavailable; set tmdb.api_key",
			nil,
		)
	}
	details, err := r.showDetailsWithRetry(ctx, logger, showID)
	if err != nil {
		return showcache.Entry{}, wrapLookupFailure("fetch show", fmt.Sprintf("show %d", showID), err)
	}
	entry := entryFromDetails(details)
	if err := r.cache.StoreShow(entry); err != nil {
		logger.Warn("failed to cache show entry", logging.Error(err))
	}
	return entry, nil
}

// seasonRecord returns the cached episode list for a season, fetching and
// caching it on a miss.
func (r *Resolver) seasonRecord(ctx context.Context, logger *slog.Logger, entry showcache.Entry, season int) (showcache.SeasonRecord, error) {
	if record, ok := r.cache.LookupSeason(entry.ShowID, season); ok {
		return record, nil
	}
	if r.searcher == nil {
		return showcache.SeasonRecord{}, services.Wrap(
			services.ErrConfiguration,
			"resolving",
			"fetch season",
			"TMDB client unavailable; set tmdb.api_key",
			nil,
		)
	}
	details, err := r.seasonDetailsWithRetry(ctx, logger, entry.ShowID, season)
	if err != nil {
		var statusErr *tmdb.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return showcache.SeasonRecord{}, services.Wrap(
				services.ErrNotFound,
				"resolving",
				"fetch season",
				fmt.Sprintf("%s has no season %d; check the release naming or add a mapping rule", entry.Title, season),
				err,
			)
		}
		return showcache.SeasonRecord{}, wrapLookupFailure("fetch season", entry.Title, err)
	}
	record := seasonRecordFromDetails(entry.ShowID, season, details)
	if err := r.cache.StoreSeason(record); err != nil {
		logger.Warn("failed to cache season record", logging.Error(err))
	}
	return record, nil
}

// wrapLookupFailure classifies a terminal TMDB error after retries are
// exhausted. Auth rejections are configuration problems, 404s are definitive
// not-found answers, and everything else stays retryable.
func wrapLookupFailure(operation, subject string, err error) error {
	var statusErr *tmdb.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "resolving", operation, "TMDB rejected the API key; check tmdb.api_key", err)
		case http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "resolving", operation, fmt.Sprintf("TMDB has no record for %q", subject), err)
		}
	}
	return services.Wrap(services.ErrTransient, "resolving", operation, fmt.Sprintf("Metadata lookup failed for %q; the item can be retried", subject), err)
}

func entryFromDetails(details *tmdb.ShowDetails) showcache.Entry {
	return showcache.Entry{
		ShowID:          details.ID,
		Title:           details.Name,
		OriginalTitle:   details.OriginalName,
		Overview:        details.Overview,
		FirstAirDate:    details.FirstAirDate,
		PosterPath:      details.PosterPath,
		VoteAverage:     details.VoteAverage,
		NumberOfSeasons: details.NumberOfSeasons,
	}
}

// seasonRecordFromDetails converts an API season payload into a cache record
// keyed by the season number that was requested, which is the number later
// lookups will use.
func seasonRecordFromDetails(showID int64, season int, details *tmdb.SeasonDetails) showcache.SeasonRecord {
	episodes := make([]showcache.EpisodeRecord, 0, len(details.Episodes))
	for _, episode := range details.Episodes {
		episodes = append(episodes, showcache.EpisodeRecord{
			Number:      episode.EpisodeNumber,
			Name:        episode.Name,
			Overview:    episode.Overview,
			AirDate:     episode.AirDate,
			VoteAverage: episode.VoteAverage,
			StillPath:   episode.StillPath,
		})
	}
	return showcache.SeasonRecord{
		ShowID:   showID,
		Season:   season,
		AirDate:  details.AirDate,
		Episodes: episodes,
	}
}
