// Package places searches the Google Places API (New) and normalises results
// into itinerary places.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trip-planner/planner/internal/itinerary"
	"github.com/trip-planner/planner/internal/logging"
	"github.com/trip-planner/planner/internal/mapsync"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://places.googleapis.com/v1/places:searchText"
	photoBaseURL    = "https://places.googleapis.com/v1/"
	photoMaxWidth   = 400
)

var fieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.location",
	"places.rating",
	"places.priceLevel",
	"places.types",
	"places.photos",
	"places.nationalPhoneNumber",
	"places.websiteUri",
	"places.editorialSummary",
	"places.regularOpeningHours",
}, ",")

var priceLevels = map[string]int{
	"PRICE_LEVEL_FREE":           0,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

// Config holds the fixed search parameters.
type Config struct {
	APIKey     string
	Endpoint   string
	Region     string
	Language   string
	MaxResults int
	RatePerSec float64
	CacheTTL   time.Duration
	Timeout    time.Duration
}

// Searcher runs text searches. It is the handle of the places capability.
type Searcher struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	logger     *slog.Logger
}

// NewSearcher creates a searcher. cache may be nil to disable caching.
func NewSearcher(cfg Config, cache Cache, logger *slog.Logger) *Searcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Searcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		cache:      cache,
		logger:     logger.With("component", "places"),
	}
}

// Register installs the searcher as the places capability. Loading fails
// without an API key.
func (s *Searcher) Register(r *mapsync.Registry) {
	r.Register(mapsync.CapabilityPlaces, func(context.Context) (mapsync.Handle, error) {
		if s.cfg.APIKey == "" {
			return nil, errors.New("google maps api key not configured")
		}
		return s, nil
	})
}

type searchRequest struct {
	TextQuery      string `json:"textQuery"`
	RegionCode     string `json:"regionCode,omitempty"`
	LanguageCode   string `json:"languageCode,omitempty"`
	MaxResultCount int    `json:"maxResultCount"`
}

type localizedText struct {
	Text string `json:"text"`
}

type apiLatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type apiPhoto struct {
	Name string `json:"name"`
}

type apiOpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

type apiPlace struct {
	ID                  string          `json:"id"`
	DisplayName         localizedText   `json:"displayName"`
	FormattedAddress    string          `json:"formattedAddress"`
	Location            apiLatLng       `json:"location"`
	Rating              *float64        `json:"rating"`
	PriceLevel          string          `json:"priceLevel"`
	Types               []string        `json:"types"`
	Photos              []apiPhoto      `json:"photos"`
	NationalPhoneNumber string          `json:"nationalPhoneNumber"`
	WebsiteURI          string          `json:"websiteUri"`
	EditorialSummary    localizedText   `json:"editorialSummary"`
	RegularOpeningHours apiOpeningHours `json:"regularOpeningHours"`
}

type searchResponse struct {
	Places []apiPlace `json:"places"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ProviderError is a non-2xx response from the Places API.
type ProviderError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("places api error (status %d, %s): %s", e.StatusCode, e.Status, e.Message)
}

// Search runs a text search. An empty query returns no results without
// calling the provider. Errors are logged and returned; nothing is retried.
func (s *Searcher) Search(ctx context.Context, query string) ([]itinerary.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []itinerary.Place{}, nil
	}

	key := s.cacheKey(query)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("search cache read failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	results, err := s.fetch(ctx, query)
	if err != nil {
		s.logger.Error("place search failed", "query", query, "error", err)
		return nil, err
	}

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, results, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("search cache write failed", "error", err)
		}
	}
	return results, nil
}

func (s *Searcher) fetch(ctx context.Context, query string) ([]itinerary.Place, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	body, err := json.Marshal(searchRequest{
		TextQuery:      query,
		RegionCode:     s.cfg.Region,
		LanguageCode:   s.cfg.Language,
		MaxResultCount: s.cfg.MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Status: apiErr.Error.Status, Message: msg}
	}

	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	results := make([]itinerary.Place, 0, len(decoded.Places))
	for _, p := range decoded.Places {
		results = append(results, s.normalize(p))
	}
	return results, nil
}

func (s *Searcher) normalize(p apiPlace) itinerary.Place {
	place := itinerary.Place{
		PlaceID:      p.ID,
		Name:         p.DisplayName.Text,
		Address:      p.FormattedAddress,
		Location:     itinerary.LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude},
		Rating:       p.Rating,
		Types:        p.Types,
		Phone:        p.NationalPhoneNumber,
		Website:      p.WebsiteURI,
		Description:  p.EditorialSummary.Text,
		OpeningHours: p.RegularOpeningHours.WeekdayDescriptions,
	}
	if level, ok := priceLevels[p.PriceLevel]; ok {
		place.PriceLevel = &level
	}
	if len(p.Photos) > 0 && p.Photos[0].Name != "" {
		place.PhotoURL = s.photoURL(p.Photos[0].Name)
	}
	return place
}

func (s *Searcher) photoURL(name string) string {
	q := url.Values{}
	q.Set("maxWidthPx", fmt.Sprint(photoMaxWidth))
	q.Set("key", s.cfg.APIKey)
	return photoBaseURL + name + "/media?" + q.Encode()
}

// cacheKey folds whitespace, case and Unicode composition so equivalent
// queries share an entry.
func (s *Searcher) cacheKey(query string) string {
	q := norm.NFC.String(strings.ToLower(strings.Join(strings.Fields(query), " ")))
	return s.cfg.Region + ":" + s.cfg.Language + ":" + q
}
