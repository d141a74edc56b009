package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	session := fs.String("session", "", "session_id filter (serves)")
	_ = fs.Parse(args)

	q := "worlds"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *limit, *session, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

type worldRow struct {
	ID           string  `json:"id"`
	Seed         int64   `json:"seed"`
	WorldW       int     `json:"world_w"`
	WorldH       int     `json:"world_h"`
	SeaLevel     float64 `json:"sea_level"`
	TuningDigest string  `json:"tuning_digest"`
	GridDigest   string  `json:"grid_digest"`
	BuildMillis  int64   `json:"build_ms"`
	CreatedAt    string  `json:"created_at"`
}

type serveRow struct {
	Seq       int64  `json:"seq"`
	SessionID string `json:"session_id"`
	Key       [2]int `json:"key"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Layers    int    `json:"layers"`
	Bytes     int    `json:"bytes"`
	GenMicros int64  `json:"gen_us"`
	ServedAt  string `json:"served_at"`
}

type codeRow struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
	AvgUS int64  `json:"avg_gen_us"`
}

// runQuery executes one named read-model query and emits each row.
func runQuery(db *sql.DB, q string, limit int, session string, emit func(any)) error {
	if limit <= 0 {
		limit = 20
	}
	switch q {
	case "worlds":
		rows, err := db.Query(`SELECT id,seed,world_w,world_h,sea_level,tuning_digest,grid_digest,build_ms,created_at FROM worlds ORDER BY created_at DESC LIMIT ?`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r worldRow
			if err := rows.Scan(&r.ID, &r.Seed, &r.WorldW, &r.WorldH, &r.SeaLevel, &r.TuningDigest, &r.GridDigest, &r.BuildMillis, &r.CreatedAt); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	case "serves":
		query := `SELECT seq,session_id,cx,cy,ok,COALESCE(code,''),layers,bytes,gen_us,served_at FROM chunk_serves`
		qargs := []any{}
		if session != "" {
			query += ` WHERE session_id=?`
			qargs = append(qargs, session)
		}
		query += ` ORDER BY seq DESC LIMIT ?`
		qargs = append(qargs, limit)
		rows, err := db.Query(query, qargs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r serveRow
			var ok int
			if err := rows.Scan(&r.Seq, &r.SessionID, &r.Key[0], &r.Key[1], &ok, &r.Code, &r.Layers, &r.Bytes, &r.GenMicros, &r.ServedAt); err != nil {
				return err
			}
			r.OK = ok != 0
			emit(r)
		}
		return rows.Err()

	case "codes":
		rows, err := db.Query(`SELECT CASE WHEN ok=1 THEN 'OK' ELSE COALESCE(code,'') END AS c, COUNT(*), CAST(AVG(gen_us) AS INTEGER) FROM chunk_serves GROUP BY c ORDER BY c`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r codeRow
			if err := rows.Scan(&r.Code, &r.Count, &r.AvgUS); err != nil {
				return err
			}
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query (want worlds|serves|codes)")
	}
}
