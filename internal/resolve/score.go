package resolve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"log/slog"

	"anilink/internal/logging"
	"anilink/internal/resolve/tmdb"
	"anilink/internal/services"
	"anilink/internal/textutil"
)

const (
	// similarityThreshold is the minimum title similarity a search result
	// needs before it is considered at all.
	similarityThreshold = 0.5
	// ambiguityMargin is the score gap below which two results are treated
	// as indistinguishable.
	ambiguityMargin = 0.08
	// seasonPresenceBonus rewards shows that actually have the parsed season.
	seasonPresenceBonus = 0.3
	// airDateWeight caps the bonus for air dates near the file's mtime.
	airDateWeight = 0.2
	// maxContenderFetches bounds detail lookups during disambiguation.
	maxContenderFetches = 5
)

type scoredShow struct {
	result     tmdb.Result
	similarity float64
	score      float64
	details    *tmdb.ShowDetails
}

// pickShow scores search results against the query title and returns the
// winning show's details. A nil result with nil error means nothing scored
// above the similarity threshold. When several results stay within the
// ambiguity margin after season and air-date scoring, an ambiguous-match
// error is returned instead of a guess.
func (r *Resolver) pickShow(ctx context.Context, logger *slog.Logger, query string, season int, modTime time.Time, response *tmdb.Response) (*tmdb.ShowDetails, error) {
	if response == nil || len(response.Results) == 0 {
		return nil, nil
	}

	logger.Info(
		"scoring search results",
		logging.String("query", query),
		logging.Int("total_results", len(response.Results)),
	)

	scored := make([]scoredShow, 0, len(response.Results))
	for idx, result := range response.Results {
		similarity := titleSimilarity(query, result)
		logger.Info(
			"scored search result",
			logging.Int("result_index", idx),
			logging.Int64("tmdb_id", result.ID),
			logging.String("title", result.Name),
			logging.String("first_air_date", result.FirstAirDate),
			logging.Float64("similarity", similarity),
			logging.Float64("vote_average", result.VoteAverage),
		)
		if similarity < similarityThreshold {
			continue
		}
		scored = append(scored, scoredShow{result: result, similarity: similarity})
	}
	if len(scored) == 0 {
		logger.Warn(
			"no result met similarity threshold",
			logging.String("query", query),
			logging.Float64("threshold", similarityThreshold),
		)
		return nil, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})

	contenders := []scoredShow{scored[0]}
	for _, sc := range scored[1:] {
		if scored[0].similarity-sc.similarity < ambiguityMargin {
			contenders = append(contenders, sc)
		}
	}

	if len(contenders) == 1 {
		details, err := r.showDetailsWithRetry(ctx, logger, contenders[0].result.ID)
		if err != nil {
			return nil, wrapLookupFailure("fetch show", contenders[0].result.Name, err)
		}
		logger.Info(
			"search result accepted",
			logging.Int64("tmdb_id", details.ID),
			logging.String("title", details.Name),
			logging.Float64("similarity", contenders[0].similarity),
		)
		return details, nil
	}

	if len(contenders) > maxContenderFetches {
		contenders = contenders[:maxContenderFetches]
	}
	logger.Info(
		"disambiguating close matches",
		logging.String("query", query),
		logging.Int("contender_count", len(contenders)),
	)

	for i := range contenders {
		details, err := r.showDetailsWithRetry(ctx, logger, contenders[i].result.ID)
		if err != nil {
			return nil, wrapLookupFailure("fetch show", contenders[i].result.Name, err)
		}
		contenders[i].details = details

		seasonBonus := 0.0
		airDate := details.FirstAirDate
		summary, hasSeason := details.Season(season)
		if hasSeason {
			seasonBonus = seasonPresenceBonus
			if summary.AirDate != "" {
				airDate = summary.AirDate
			}
		}
		airBonus := airDateProximity(airDate, modTime)
		// The vote term is a quality tiebreak, small enough that it can
		// never separate contenders on its own.
		contenders[i].score = contenders[i].similarity + seasonBonus + airBonus + details.VoteAverage/200

		logger.Info(
			"scored contender",
			logging.Int64("tmdb_id", details.ID),
			logging.String("title", details.Name),
			logging.Bool("has_season", hasSeason),
			logging.Float64("air_date_bonus", airBonus),
			logging.Float64("total_score", contenders[i].score),
		)
	}

	sort.SliceStable(contenders, func(i, j int) bool {
		return contenders[i].score > contenders[j].score
	})

	if contenders[0].score-contenders[1].score < ambiguityMargin {
		names := contenderNames(contenders)
		logger.Warn(
			"resolution ambiguous after disambiguation",
			logging.String("query", query),
			logging.String("contenders", names),
		)
		return nil, services.Wrap(
			services.ErrAmbiguous,
			"resolving",
			"select show",
			fmt.Sprintf("Multiple close matches for %q: %s; add a mapping rule to pin the show", query, names),
			nil,
		)
	}

	winner := contenders[0]
	logger.Info(
		"disambiguation selected show",
		logging.Int64("tmdb_id", winner.details.ID),
		logging.String("title", winner.details.Name),
		logging.Float64("score", winner.score),
		logging.Float64("runner_up_score", contenders[1].score),
	)
	return winner.details, nil
}

// titleSimilarity compares the query against both the localized and original
// titles and keeps the better match.
func titleSimilarity(query string, result tmdb.Result) float64 {
	similarity := textutil.TitleSimilarity(query, result.Name)
	if result.OriginalName != "" {
		if alt := textutil.TitleSimilarity(query, result.OriginalName); alt > similarity {
			similarity = alt
		}
	}
	return similarity
}

// airDateProximity rewards shows whose air date sits near the file's
// modification time. The bonus decays linearly to zero across ten years and
// vanishes when either date is unknown.
func airDateProximity(airDate string, modTime time.Time) float64 {
	if modTime.IsZero() {
		return 0
	}
	aired, err := time.Parse("2006-01-02", strings.TrimSpace(airDate))
	if err != nil {
		return 0
	}
	years := math.Abs(modTime.Sub(aired).Hours()) / (24 * 365)
	if years >= 10 {
		return 0
	}
	return airDateWeight * (1 - years/10)
}

func contenderNames(contenders []scoredShow) string {
	parts := make([]string, 0, len(contenders))
	for _, contender := range contenders {
		title := contender.result.Name
		if contender.details != nil {
			title = contender.details.Name
		}
		parts = append(parts, fmt.Sprintf("%s (#%d)", title, contender.result.ID))
	}
	return strings.Join(parts, ", ")
}
