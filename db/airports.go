package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gilby125/flight-connections/airports"
	"github.com/lib/pq"
)

const selectAirportsQuery = `
	SELECT a.id, a.ident, a.type, a.name, a.latitude_deg, a.longitude_deg, a.elevation_ft,
	       a.continent, a.iso_country, a.iso_region, a.municipality, a.scheduled_service,
	       a.gps_code, a.iata_code, a.local_code, a.home_link, a.wikipedia_link, a.keywords,
	       COALESCE(array_agg(r.destination_code ORDER BY r.destination_code)
	                FILTER (WHERE r.destination_code IS NOT NULL), '{}') AS destinations
	FROM airports a
	LEFT JOIN routes r ON r.origin_code = a.iata_code
	GROUP BY a.id
	ORDER BY a.id`

// Airports reads the whole dataset with destinations aggregated from the
// routes table. It satisfies airports.Source.
func (p *PostgresDB) Airports(ctx context.Context) ([]airports.Airport, error) {
	rows, err := p.db.QueryContext(ctx, selectAirportsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	var out []airports.Airport
	for rows.Next() {
		a, err := scanAirport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating airport rows: %w", err)
	}
	return out, nil
}

func scanAirport(rows *sql.Rows) (airports.Airport, error) {
	var (
		a                                 airports.Airport
		lat, lon                          sql.NullFloat64
		elevation                         sql.NullInt64
		iata, local, home, wiki, keywords sql.NullString
		destinations                      []string
	)
	err := rows.Scan(
		&a.ID, &a.Ident, &a.Type, &a.Name, &lat, &lon, &elevation,
		&a.Continent, &a.ISOCountry, &a.ISORegion, &a.Municipality, &a.ScheduledService,
		&a.GPSCode, &iata, &local, &home, &wiki, &keywords,
		pq.Array(&destinations),
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan airport row: %w", err)
	}

	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lon.Valid {
		a.Longitude = &lon.Float64
	}
	if elevation.Valid {
		ft := int(elevation.Int64)
		a.ElevationFt = &ft
	}
	a.IataCode = iata.String
	a.LocalCode = local.String
	a.HomeLink = home.String
	a.WikipediaLink = wiki.String
	a.Keywords = keywords.String
	a.Destinations = destinations
	a.DestinationCount = len(destinations)
	return a, nil
}

const upsertAirportQuery = `
	INSERT INTO airports (id, ident, type, name, latitude_deg, longitude_deg, elevation_ft,
	                      continent, iso_country, iso_region, municipality, scheduled_service,
	                      gps_code, iata_code, local_code, home_link, wikipedia_link, keywords)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	ON CONFLICT (id) DO UPDATE SET
		ident = EXCLUDED.ident, type = EXCLUDED.type, name = EXCLUDED.name,
		latitude_deg = EXCLUDED.latitude_deg, longitude_deg = EXCLUDED.longitude_deg,
		elevation_ft = EXCLUDED.elevation_ft, continent = EXCLUDED.continent,
		iso_country = EXCLUDED.iso_country, iso_region = EXCLUDED.iso_region,
		municipality = EXCLUDED.municipality, scheduled_service = EXCLUDED.scheduled_service,
		gps_code = EXCLUDED.gps_code, iata_code = EXCLUDED.iata_code,
		local_code = EXCLUDED.local_code, home_link = EXCLUDED.home_link,
		wikipedia_link = EXCLUDED.wikipedia_link, keywords = EXCLUDED.keywords`

// ImportAirports upserts airports and replaces their outgoing routes in a
// single transaction.
func (p *PostgresDB) ImportAirports(ctx context.Context, data []airports.Airport) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin airport import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range data {
		if _, err := tx.ExecContext(ctx, upsertAirportQuery,
			a.ID, a.Ident, a.Type, a.Name, a.Latitude, a.Longitude, a.ElevationFt,
			a.Continent, a.ISOCountry, a.ISORegion, a.Municipality, a.ScheduledService,
			a.GPSCode, nullString(a.IataCode), nullString(a.LocalCode), nullString(a.HomeLink),
			nullString(a.WikipediaLink), nullString(a.Keywords),
		); err != nil {
			return fmt.Errorf("upsert airport %d: %w", a.ID, err)
		}

		if a.IataCode == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE origin_code = $1`, a.IataCode); err != nil {
			return fmt.Errorf("clear routes for %s: %w", a.IataCode, err)
		}
		if len(a.Destinations) == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO routes (origin_code, destination_code)
			 SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`,
			a.IataCode, pq.Array(a.Destinations),
		); err != nil {
			return fmt.Errorf("insert routes for %s: %w", a.IataCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit airport import: %w", err)
	}
	return nil
}

// SeedAirportsIfEmpty imports from src when the airports table has no rows.
func (p *PostgresDB) SeedAirportsIfEmpty(ctx context.Context, src airports.Source) (bool, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM airports`).Scan(&count); err != nil {
		return false, fmt.Errorf("count airports: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	data, err := src.Airports(ctx)
	if err != nil {
		return false, fmt.Errorf("read seed airports: %w", err)
	}
	if err := p.ImportAirports(ctx, data); err != nil {
		return false, err
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
