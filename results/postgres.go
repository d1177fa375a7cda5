/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package results

import (
	"context"
	"fmt"

	"github.com/Seednode/platematch/match"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `CREATE TABLE IF NOT EXISTS match_results (
	id          TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	reason      TEXT NOT NULL,
	winner_seat SMALLINT NOT NULL,
	loser_seat  SMALLINT NOT NULL,
	winner_id   TEXT NOT NULL,
	winner_name TEXT NOT NULL,
	loser_id    TEXT NOT NULL,
	loser_name  TEXT NOT NULL,
	plate_count SMALLINT NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

const indexFinishedAt = `CREATE INDEX IF NOT EXISTS match_results_finished_at ON match_results (finished_at DESC)`

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to url and makes sure the results table exists.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("connect to database: %w", err)
	}

	for _, stmt := range []string{schema, indexFinishedAt} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()

			return nil, fmt.Errorf("migrate results table: %w", err)
		}
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Save(ctx context.Context, r Result) (Result, error) {
	r, err := prepare(r)
	if err != nil {
		return Result{}, err
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO match_results
			(id, room_id, reason, winner_seat, loser_seat, winner_id, winner_name, loser_id, loser_name, plate_count, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.RoomID, string(r.Reason), int(r.WinnerSeat), int(r.LoserSeat),
		r.WinnerID, r.WinnerName, r.LoserID, r.LoserName, r.PlateCount, r.FinishedAt,
	)
	if err != nil {
		return Result{}, fmt.Errorf("insert result: %w", err)
	}

	return r, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Result, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, room_id, reason, winner_seat, loser_seat, winner_id, winner_name, loser_id, loser_name, plate_count, finished_at
		FROM match_results ORDER BY finished_at DESC LIMIT $1`,
		max(limit, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]Result, 0, max(limit, 0))
	for rows.Next() {
		var (
			r             Result
			reason        string
			winner, loser int
		)
		if err := rows.Scan(&r.ID, &r.RoomID, &reason, &winner, &loser,
			&r.WinnerID, &r.WinnerName, &r.LoserID, &r.LoserName, &r.PlateCount, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Reason = match.Reason(reason)
		r.WinnerSeat = match.Seat(winner)
		r.LoserSeat = match.Seat(loser)
		out = append(out, r)
	}

	return out, rows.Err()
}

func (p *Postgres) Close() {
	p.pool.Close()
}
