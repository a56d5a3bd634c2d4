// README: Reverse geocoding with caching, retries and a provisional fallback inside Korea.
package maps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/maypok86/otter/v2"
	"googlemaps.github.io/maps"

	"travelmate/internal/types"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrNoResult           = errors.New("no address for coordinates")
	ErrLookupFailed       = errors.New("address lookup failed")
	ErrNotConfigured      = errors.New("geocoding api key not configured")
)

// Geocoder is the subset of *maps.Client used here.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Address is a resolved address. Provisional marks a canned answer served
// while the upstream is failing.
type Address struct {
	Address     string `json:"address"`
	RoadAddress string `json:"road_address,omitempty"`
	Provisional bool   `json:"provisional"`
}

type AddressOptions struct {
	Language  string
	Region    string
	CacheSize int
	CacheTTL  time.Duration
	Attempts  uint
	BaseDelay time.Duration
	Logger    *slog.Logger
}

func (o AddressOptions) withDefaults() AddressOptions {
	if o.Language == "" {
		o.Language = "ko"
	}
	if o.Region == "" {
		o.Region = "KR"
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 10_000
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 200 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// AddressService resolves coordinates to addresses.
type AddressService struct {
	geocoder Geocoder
	cache    *otter.Cache[string, Address]
	opts     AddressOptions
}

// NewAddressService creates an AddressService backed by the Google Geocoding API.
// Without an API key every lookup goes straight to the fallbacks.
func NewAddressService(apiKey string, opts AddressOptions) (*AddressService, error) {
	if apiKey == "" {
		return NewAddressServiceWithGeocoder(disabledGeocoder{}, opts), nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return NewAddressServiceWithGeocoder(client, opts), nil
}

func NewAddressServiceWithGeocoder(g Geocoder, opts AddressOptions) *AddressService {
	opts = opts.withDefaults()
	return &AddressService{
		geocoder: g,
		cache: otter.Must(&otter.Options[string, Address]{
			MaximumSize:      opts.CacheSize,
			ExpiryCalculator: otter.ExpiryWriting[string, Address](opts.CacheTTL),
		}),
		opts: opts,
	}
}

// Lookup resolves p. When the upstream fails for a point inside Korea a
// provisional address is returned instead of an error; provisional answers
// are not cached.
func (s *AddressService) Lookup(ctx context.Context, p types.GeoPoint) (Address, error) {
	if !p.Valid() {
		return Address{}, ErrInvalidCoordinates
	}
	key := cacheKey(p)
	if a, ok := s.cache.GetIfPresent(key); ok {
		return a, nil
	}

	a, err := s.reverseGeocode(ctx, p)
	if err == nil {
		s.cache.Set(key, a)
		return a, nil
	}
	if ctx.Err() != nil {
		return Address{}, ctx.Err()
	}
	if InKorea(p) {
		s.opts.Logger.Warn("reverse geocoding failed, serving provisional address",
			"lat", p.Lat, "lng", p.Lng, "error", err)
		return ProvisionalAddress(p), nil
	}
	return Address{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
}

// Address returns the most specific address line for p.
func (s *AddressService) Address(ctx context.Context, p types.GeoPoint) (string, error) {
	a, err := s.Lookup(ctx, p)
	if err != nil {
		return "", err
	}
	if a.RoadAddress != "" {
		return a.RoadAddress, nil
	}
	return a.Address, nil
}

func (s *AddressService) reverseGeocode(ctx context.Context, p types.GeoPoint) (Address, error) {
	req := &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
		Language: s.opts.Language,
		Region:   s.opts.Region,
	}

	var results []maps.GeocodingResult
	err := retry.Do(
		func() error {
			var err error
			results, err = s.geocoder.ReverseGeocode(ctx, req)
			if errors.Is(err, ErrNotConfigured) {
				return retry.Unrecoverable(err)
			}
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return retry.Unrecoverable(ErrNoResult)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.opts.Attempts),
		retry.Delay(s.opts.BaseDelay),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.opts.Logger.Debug("retrying reverse geocode", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return Address{}, err
	}

	a := Address{Address: results[0].FormattedAddress}
	for _, r := range results {
		if slices.Contains(r.Types, "street_address") || slices.Contains(r.Types, "premise") {
			a.RoadAddress = r.FormattedAddress
			break
		}
	}
	return a, nil
}

type disabledGeocoder struct{}

func (disabledGeocoder) ReverseGeocode(context.Context, *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	return nil, ErrNotConfigured
}

// InKorea reports whether p lies in the rough bounding box of South Korea.
func InKorea(p types.GeoPoint) bool {
	return p.Lat >= 33 && p.Lat <= 39 && p.Lng >= 124 && p.Lng <= 132
}

func ProvisionalAddress(p types.GeoPoint) Address {
	return Address{
		Address:     fmt.Sprintf("경기도 성남시 분당구 (임시 위치: %.4f, %.4f)", p.Lat, p.Lng),
		RoadAddress: "경기도 성남시 분당구 대왕판교로 123 (임시 위치)",
		Provisional: true,
	}
}

// CoordinateFallback is the display string used when no address is known.
func CoordinateFallback(p types.GeoPoint) string {
	return fmt.Sprintf("위도 %.4f, 경도 %.4f", p.Lat, p.Lng)
}

func cacheKey(p types.GeoPoint) string {
	return fmt.Sprintf("%.5f,%.5f", p.Lat, p.Lng)
}
