package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/jack-barr3tt/tcs-engine/src/common/types"
	"github.com/jackc/pgx/v5"
)

var ErrUnknownRoute = errors.New("unknown route")

const Schema = `
CREATE TABLE IF NOT EXISTS route (
	name       TEXT PRIMARY KEY,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS track_section (
	route      TEXT NOT NULL REFERENCES route(name) ON DELETE CASCADE,
	idx        INTEGER NOT NULL,
	length     DOUBLE PRECISION NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'normal',
	track_node INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (route, idx)
);
CREATE TABLE IF NOT EXISTS track_link (
	route     TEXT NOT NULL REFERENCES route(name) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	section_a INTEGER NOT NULL,
	pin_a     INTEGER NOT NULL,
	section_b INTEGER NOT NULL,
	pin_b     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS alternative_route (
	route               TEXT NOT NULL REFERENCES route(name) ON DELETE CASCADE,
	idx                 INTEGER NOT NULL,
	name                TEXT NOT NULL,
	groups              TEXT[] NOT NULL DEFAULT '{}',
	bypasses            INTEGER[] NOT NULL,
	start_section       INTEGER NOT NULL,
	start_direction     INTEGER NOT NULL,
	via                 INTEGER[] NOT NULL,
	usable_length       DOUBLE PRECISION NOT NULL,
	last_usable_section INTEGER NOT NULL,
	PRIMARY KEY (route, idx)
);
ALTER TABLE track_link ADD COLUMN IF NOT EXISTS seq INTEGER NOT NULL DEFAULT 0;
`

func (dc *DataClient) EnsureSchema(ctx context.Context) error {
	_, err := dc.pg.Exec(ctx, Schema)
	return err
}

// LoadTopology reads a route back in the order it was written. Links keep their
// written order because junction pin slots are assigned in connection order.
func (dc *DataClient) LoadTopology(ctx context.Context, route string) (*types.Topology, error) {
	var exists bool
	if err := dc.pg.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM route WHERE name = $1)`, route).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, route)
	}

	topo := &types.Topology{Name: route}

	rows, err := dc.pg.Query(ctx, `
		SELECT idx, length, kind, track_node
		FROM track_section
		WHERE route = $1
		ORDER BY idx
	`, route)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	topo.Sections, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TopologySection, error) {
		var s types.TopologySection
		err := row.Scan(&s.Index, &s.Length, &s.Kind, &s.TrackNode)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sections: %w", err)
	}

	rows, err = dc.pg.Query(ctx, `
		SELECT section_a, pin_a, section_b, pin_b
		FROM track_link
		WHERE route = $1
		ORDER BY seq
	`, route)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	topo.Links, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TopologyLink, error) {
		var l types.TopologyLink
		err := row.Scan(&l.SectionA, &l.PinA, &l.SectionB, &l.PinB)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}

	rows, err = dc.pg.Query(ctx, `
		SELECT name, groups, bypasses, start_section, start_direction, via, usable_length, last_usable_section
		FROM alternative_route
		WHERE route = $1
		ORDER BY idx
	`, route)
	if err != nil {
		return nil, fmt.Errorf("failed to query alternatives: %w", err)
	}
	topo.Alternatives, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.AlternativeRoute, error) {
		var a types.AlternativeRoute
		err := row.Scan(&a.Name, &a.Groups, &a.Bypasses, &a.StartSection, &a.StartDirection, &a.Via, &a.UsableLength, &a.LastUsableSection)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read alternatives: %w", err)
	}

	dc.logger.Debugw("loaded topology", "route", route, "sections", len(topo.Sections), "links", len(topo.Links), "alternatives", len(topo.Alternatives))
	return topo, nil
}

// WriteTopology replaces a route in a single transaction.
func (dc *DataClient) WriteTopology(ctx context.Context, topo *types.Topology) error {
	tx, err := dc.pg.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM route WHERE name = $1`, topo.Name); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO route (name) VALUES ($1)`, topo.Name); err != nil {
		return err
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"track_section"},
		[]string{"route", "idx", "length", "kind", "track_node"},
		pgx.CopyFromSlice(len(topo.Sections), func(i int) ([]any, error) {
			s := topo.Sections[i]
			kind := s.Kind
			if kind == "" {
				kind = types.SectionNormal
			}
			return []any{topo.Name, s.Index, s.Length, string(kind), s.TrackNode}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy sections: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"track_link"},
		[]string{"route", "seq", "section_a", "pin_a", "section_b", "pin_b"},
		pgx.CopyFromSlice(len(topo.Links), func(i int) ([]any, error) {
			return linkRow(topo.Name, i, topo.Links[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy links: %w", err)
	}

	batch := &pgx.Batch{}
	for i, a := range topo.Alternatives {
		batch.Queue(`
			INSERT INTO alternative_route
				(route, idx, name, groups, bypasses, start_section, start_direction, via, usable_length, last_usable_section)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, alternativeArgs(topo.Name, i, a)...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert alternatives: %w", err)
	}

	return tx.Commit(ctx)
}

func linkRow(route string, seq int, l types.TopologyLink) []any {
	return []any{route, seq, l.SectionA, l.PinA, l.SectionB, l.PinB}
}

// alternativeArgs fills the NOT NULL array columns with empty arrays.
func alternativeArgs(route string, idx int, a types.AlternativeRoute) []any {
	groups := a.Groups
	if groups == nil {
		groups = []string{}
	}
	bypasses := a.Bypasses
	if bypasses == nil {
		bypasses = []int{}
	}
	via := a.Via
	if via == nil {
		via = []int{}
	}
	return []any{route, idx, a.Name, groups, bypasses, a.StartSection, a.StartDirection, via, a.UsableLength, a.LastUsableSection}
}

func (dc *DataClient) ListRoutes(ctx context.Context) ([]string, error) {
	rows, err := dc.pg.Query(ctx, `SELECT name FROM route ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
