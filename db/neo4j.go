package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jReader runs read-only Cypher.
type Neo4jReader interface {
	ExecuteReadQuery(ctx context.Context, query string, params map[string]interface{}) (Neo4jResult, error)
}

// Neo4jResult defines the interface for Neo4j query results
type Neo4jResult interface {
	Next() bool
	Record() *neo4j.Record
	Err() error
	Close() error
}

// Neo4jDB represents a Neo4j database connection holding the route graph:
// (:Airport)-[:ROUTE]->(:Airport).
type Neo4jDB struct {
	driver neo4j.Driver
}

// Neo4jResultWithSession wraps a Neo4j result and its session; Close closes
// the session.
type Neo4jResultWithSession struct {
	result  neo4j.Result
	session neo4j.Session
}

func (r *Neo4jResultWithSession) Next() bool            { return r.result.Next() }
func (r *Neo4jResultWithSession) Record() *neo4j.Record { return r.result.Record() }
func (r *Neo4jResultWithSession) Err() error            { return r.result.Err() }

func (r *Neo4jResultWithSession) Close() error {
	if r.session != nil {
		return r.session.Close()
	}
	return nil
}

var _ Neo4jResult = (*Neo4jResultWithSession)(nil)

// NewNeo4jDB creates a new Neo4j database connection
func NewNeo4jDB(cfg config.Neo4jConfig) (*Neo4jDB, error) {
	driver, err := neo4j.NewDriver(strings.TrimSpace(cfg.URI), neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	if err := driver.VerifyConnectivity(); err != nil {
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	return &Neo4jDB{driver: driver}, nil
}

// Close closes the database connection
func (n *Neo4jDB) Close() error {
	return n.driver.Close()
}

// ExecuteReadQuery runs a read-only query. The caller must Close the result.
func (n *Neo4jDB) ExecuteReadQuery(ctx context.Context, query string, params map[string]interface{}) (Neo4jResult, error) {
	session := n.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})

	result, err := session.Run(query, params)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to run Neo4j query: %w", err)
	}

	return &Neo4jResultWithSession{result: result, session: session}, nil
}

// InitSchema creates the airport code constraint.
func (n *Neo4jDB) InitSchema() error {
	session := n.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	if _, err := session.Run(
		"CREATE CONSTRAINT airport_code IF NOT EXISTS FOR (a:Airport) REQUIRE a.code IS UNIQUE",
		nil,
	); err != nil {
		return fmt.Errorf("failed to create airport code constraint: %w", err)
	}
	return nil
}

// ImportAirports merges airport nodes and their ROUTE relationships. Airports
// without a carrier code cannot be joined and are skipped.
func (n *Neo4jDB) ImportAirports(ctx context.Context, data []airports.Airport) error {
	session := n.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	rows := make([]interface{}, 0, len(data))
	for _, a := range data {
		if a.IataCode == "" {
			continue
		}
		rows = append(rows, airportParams(a))
	}

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		if _, err := tx.Run(
			"UNWIND $rows AS row "+
				"MERGE (a:Airport {code: row.code}) "+
				"SET a.id = row.id, a.ident = row.ident, a.type = row.type, a.name = row.name, "+
				"a.latitude = row.latitude, a.longitude = row.longitude, a.country = row.country, "+
				"a.municipality = row.municipality",
			map[string]interface{}{"rows": rows},
		); err != nil {
			return nil, err
		}
		_, err := tx.Run(
			"UNWIND $rows AS row "+
				"MATCH (origin:Airport {code: row.code}) "+
				"UNWIND row.destinations AS destCode "+
				"MATCH (dest:Airport {code: destCode}) "+
				"MERGE (origin)-[:ROUTE]->(dest)",
			map[string]interface{}{"rows": rows},
		)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to import airports into Neo4j: %w", err)
	}
	return nil
}

func airportParams(a airports.Airport) map[string]interface{} {
	destinations := make([]interface{}, len(a.Destinations))
	for i, d := range a.Destinations {
		destinations[i] = d
	}
	params := map[string]interface{}{
		"id":           a.ID,
		"code":         a.IataCode,
		"ident":        a.Ident,
		"type":         a.Type,
		"name":         a.Name,
		"country":      a.ISOCountry,
		"municipality": a.Municipality,
		"latitude":     nil,
		"longitude":    nil,
		"destinations": destinations,
	}
	if a.Latitude != nil {
		params["latitude"] = *a.Latitude
	}
	if a.Longitude != nil {
		params["longitude"] = *a.Longitude
	}
	return params
}

const graphAirportsQuery = `
	MATCH (a:Airport)
	OPTIONAL MATCH (a)-[:ROUTE]->(d:Airport)
	WITH a, collect(DISTINCT d.code) AS destinations
	RETURN a.id AS id, a.ident AS ident, a.type AS type, a.code AS code, a.name AS name,
	       a.latitude AS latitude, a.longitude AS longitude, a.country AS country,
	       a.municipality AS municipality, destinations
	ORDER BY code`

// Airports reads the dataset from the route graph. It satisfies airports.Source.
func (n *Neo4jDB) Airports(ctx context.Context) ([]airports.Airport, error) {
	return GraphAirports(ctx, n)
}

// GraphAirports reads airport nodes and their outgoing ROUTE targets.
func GraphAirports(ctx context.Context, reader Neo4jReader) ([]airports.Airport, error) {
	result, err := reader.ExecuteReadQuery(ctx, graphAirportsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query airport graph: %w", err)
	}
	defer result.Close()

	var out []airports.Airport
	for result.Next() {
		out = append(out, airportFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating airport graph results: %w", err)
	}
	return out, nil
}

func airportFromRecord(record *neo4j.Record) airports.Airport {
	var a airports.Airport

	if v, ok := record.Get("id"); ok {
		if id, ok := v.(int64); ok {
			a.ID = id
		}
	}
	a.Ident = recordString(record, "ident")
	a.Type = recordString(record, "type")
	a.IataCode = recordString(record, "code")
	a.Name = recordString(record, "name")
	a.ISOCountry = recordString(record, "country")
	a.Municipality = recordString(record, "municipality")

	if v, ok := record.Get("latitude"); ok {
		if f, ok := v.(float64); ok {
			a.Latitude = &f
		}
	}
	if v, ok := record.Get("longitude"); ok {
		if f, ok := v.(float64); ok {
			a.Longitude = &f
		}
	}

	if v, ok := record.Get("destinations"); ok {
		if list, ok := v.([]interface{}); ok {
			for _, item := range list {
				if code, ok := item.(string); ok && code != "" {
					a.Destinations = append(a.Destinations, code)
				}
			}
		}
	}
	a.DestinationCount = len(a.Destinations)
	return a
}

func recordString(record *neo4j.Record, key string) string {
	v, _ := record.Get(key)
	s, _ := v.(string)
	return s
}
