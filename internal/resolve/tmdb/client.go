package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Result represents a single TMDB TV search match.
type Result struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	OriginalName string  `json:"original_name"`
	Overview     string  `json:"overview"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	Popularity   float64 `json:"popularity"`
	VoteAverage  float64 `json:"vote_average"`
	VoteCount    int64   `json:"vote_count"`
}

// Response models the TMDB paginated search response.
type Response struct {
	Page         int      `json:"page"`
	Results      []Result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

// SeasonSummary describes one season entry on a show details payload.
type SeasonSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	AirDate      string `json:"air_date"`
}

// ShowDetails captures the TMDB TV show payload fields the resolver scores.
type ShowDetails struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	OriginalName    string          `json:"original_name"`
	Overview        string          `json:"overview"`
	FirstAirDate    string          `json:"first_air_date"`
	PosterPath      string          `json:"poster_path"`
	NumberOfSeasons int             `json:"number_of_seasons"`
	VoteAverage     float64         `json:"vote_average"`
	Seasons         []SeasonSummary `json:"seasons"`
}

// Season returns the summary for the given season number, if the show has it.
func (d *ShowDetails) Season(number int) (SeasonSummary, bool) {
	for _, season := range d.Seasons {
		if season.SeasonNumber == number {
			return season, true
		}
	}
	return SeasonSummary{}, false
}

// Episode describes a single TMDB episode entry.
type Episode struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Overview      string  `json:"overview"`
	SeasonNumber  int     `json:"season_number"`
	EpisodeNumber int     `json:"episode_number"`
	AirDate       string  `json:"air_date"`
	VoteAverage   float64 `json:"vote_average"`
	StillPath     string  `json:"still_path"`
}

// SeasonDetails captures the full TMDB season payload, episodes included.
type SeasonDetails struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SeasonNumber int       `json:"season_number"`
	AirDate      string    `json:"air_date"`
	Episodes     []Episode `json:"episodes"`
}

// Episode returns the entry for the given episode number, if present.
func (d *SeasonDetails) Episode(number int) (Episode, bool) {
	for _, episode := range d.Episodes {
		if episode.EpisodeNumber == number {
			return episode, true
		}
	}
	return Episode{}, false
}

// SearchOptions contains optional parameters for TMDB TV search.
type SearchOptions struct {
	Year int `json:"year,omitempty"`
}

// StatusError reports a non-200 TMDB response with its HTTP status code so
// callers can classify the failure.
type StatusError struct {
	Op      string
	Code    int
	Latency time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb %s returned %d (latency=%v)", e.Op, e.Code, e.Latency)
}

// Transient reports whether the status is worth retrying: rate limiting and
// server-side failures pass, definitive client errors do not.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Searcher defines the TMDB operations used by the resolving stage.
type Searcher interface {
	SearchTV(ctx context.Context, query string, opts SearchOptions) (*Response, error)
	GetTVDetails(ctx context.Context, showID int64) (*ShowDetails, error)
	GetSeasonDetails(ctx context.Context, showID int64, season int) (*SeasonDetails, error)
}

// Client provides access to the TMDB API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit throttles outgoing requests to the given rate per second.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			burst := int(requestsPerSecond)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		}
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	language = strings.TrimSpace(language)
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// SearchTV performs a TMDB TV search with optional filters.
func (c *Client) SearchTV(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	endpoint, err := url.Parse(c.baseURL + "/search/tv")
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	if opts.Year > 0 {
		params.Set("first_air_date_year", strconv.Itoa(opts.Year))
	}
	endpoint.RawQuery = params.Encode()

	var payload Response
	if err := c.get(ctx, "tv search", endpoint.String(), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetTVDetails fetches TV show details by TMDB ID, season summaries included.
func (c *Client) GetTVDetails(ctx context.Context, showID int64) (*ShowDetails, error) {
	if showID <= 0 {
		return nil, errors.New("show id must be positive")
	}
	endpoint, err := url.Parse(fmt.Sprintf("%s/tv/%d", c.baseURL, showID))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	var payload ShowDetails
	if err := c.get(ctx, "tv details", endpoint.String(), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetSeasonDetails fetches the full season metadata for a show, episodes
// included. Season zero is valid and addresses specials.
func (c *Client) GetSeasonDetails(ctx context.Context, showID int64, season int) (*SeasonDetails, error) {
	if showID <= 0 {
		return nil, errors.New("show id must be positive")
	}
	if season < 0 {
		return nil, errors.New("season number must not be negative")
	}
	endpoint, err := url.Parse(fmt.Sprintf("%s/tv/%d/season/%d", c.baseURL, showID, season))
	if err != nil {
		return nil, fmt.Errorf("parse tmdb url: %w", err)
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	var payload SeasonDetails
	if err := c.get(ctx, "season fetch", endpoint.String(), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, op, endpoint string, payload any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("await rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: op, Code: resp.StatusCode, Latency: latency}
	}
	if err := json.NewDecoder(resp.Body).Decode(payload); err != nil {
		return fmt.Errorf("decode tmdb response: %w", err)
	}
	return nil
}
