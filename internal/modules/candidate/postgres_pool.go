// README: Candidate pool backed by the PostgreSQL travelers table (bounding-box query).
package candidate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"travelmate/internal/types"
)

type PostgresPool struct {
	db *pgxpool.Pool
}

func NewPostgresPool(db *pgxpool.Pool) *PostgresPool {
	return &PostgresPool{db: db}
}

// Bounds is a lat/lng box around an origin.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a box that contains every point within radiusKm of
// origin. Near the poles the longitude span widens to the full range.
func BoundingBox(origin types.GeoPoint, radiusKm float64) Bounds {
	dLat := radiusKm / kmPerDegreeLat
	b := Bounds{
		MinLat: math.Max(-90, origin.Lat-dLat),
		MaxLat: math.Min(90, origin.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}
	// A circle over a pole spans every longitude.
	if origin.Lat+dLat >= 90 || origin.Lat-dLat <= -90 {
		return b
	}
	cosLat := math.Cos(origin.Lat * math.Pi / 180)
	if cosLat > 1e-6 {
		dLng := radiusKm / (kmPerDegreeLat * cosLat)
		if dLng < 180 {
			b.MinLng = origin.Lng - dLng
			b.MaxLng = origin.Lng + dLng
		}
	}
	return b
}

func (p *PostgresPool) Snapshot(ctx context.Context, q Query) ([]Candidate, error) {
	b := BoundingBox(q.Origin, queryRadiusKm(q.RadiusKm))

	// A box crossing the antimeridian is split into two longitude ranges.
	lngA1, lngA2, lngB1, lngB2 := b.MinLng, b.MaxLng, 1.0, -1.0
	if b.MinLng < -180 {
		lngA1, lngB1, lngB2 = -180, b.MinLng+360, 180
	} else if b.MaxLng > 180 {
		lngA2, lngB1, lngB2 = 180, -180, b.MaxLng-360
	}

	rows, err := p.db.Query(ctx, `
        SELECT id, lat, lng, travel_style, interests, languages, online, last_active_at
        FROM travelers
        WHERE discoverable
          AND id <> $1
          AND lat BETWEEN $2 AND $3
          AND (lng BETWEEN $4 AND $5 OR lng BETWEEN $6 AND $7)`,
		string(q.RequesterID),
		b.MinLat, b.MaxLat,
		lngA1, lngA2, lngB1, lngB2,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying travelers: %v", ErrPoolUnavailable, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c          Candidate
			id         string
			lastActive *time.Time
		)
		if err := rows.Scan(
			&id, &c.Location.Lat, &c.Location.Lng,
			&c.Attributes.TravelStyle, &c.Attributes.Interests, &c.Attributes.Languages,
			&c.Attributes.Online, &lastActive,
		); err != nil {
			return nil, fmt.Errorf("scanning traveler: %w", err)
		}
		c.ID = types.ID(id)
		if lastActive != nil {
			c.Attributes.LastActiveAt = *lastActive
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading travelers: %v", ErrPoolUnavailable, err)
	}
	return out, nil
}

// Upsert writes a traveler row; used by the profile endpoint and fixtures.
func (p *PostgresPool) Upsert(ctx context.Context, c Candidate) error {
	_, err := p.db.Exec(ctx, `
        INSERT INTO travelers (
            id, lat, lng, travel_style, interests, languages, online, last_active_at, discoverable
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
        ON CONFLICT (id) DO UPDATE SET
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            travel_style = EXCLUDED.travel_style,
            interests = EXCLUDED.interests,
            languages = EXCLUDED.languages,
            online = EXCLUDED.online,
            last_active_at = EXCLUDED.last_active_at,
            discoverable = TRUE`,
		string(c.ID),
		c.Location.Lat, c.Location.Lng,
		c.Attributes.TravelStyle,
		orEmpty(normalizeInterests(c.Attributes.Interests)),
		orEmpty(c.Attributes.Languages),
		c.Attributes.Online,
		toTimePtr(c.Attributes.LastActiveAt),
	)
	return err
}

// UpdatePosition records a fix, creating the traveler row when needed.
func (p *PostgresPool) UpdatePosition(ctx context.Context, id types.ID, pos types.GeoPoint, at time.Time) error {
	_, err := p.db.Exec(ctx, `
        INSERT INTO travelers (id, lat, lng, online, last_active_at)
        VALUES ($1, $2, $3, TRUE, $4)
        ON CONFLICT (id) DO UPDATE SET
            lat = EXCLUDED.lat,
            lng = EXCLUDED.lng,
            online = TRUE,
            last_active_at = EXCLUDED.last_active_at`,
		string(id), pos.Lat, pos.Lng, at,
	)
	return err
}

func (p *PostgresPool) UpsertProfile(ctx context.Context, id types.ID, attrs Attributes) error {
	tag, err := p.db.Exec(ctx, `
        UPDATE travelers SET
            travel_style = $2,
            interests = $3,
            languages = $4,
            online = $5,
            last_active_at = COALESCE($6, last_active_at)
        WHERE id = $1`,
		string(id),
		attrs.TravelStyle,
		orEmpty(normalizeInterests(attrs.Interests)),
		orEmpty(attrs.Languages),
		attrs.Online,
		toTimePtr(attrs.LastActiveAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownTraveler
	}
	return nil
}

func toTimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// orEmpty keeps NOT NULL array columns from receiving NULL.
func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
