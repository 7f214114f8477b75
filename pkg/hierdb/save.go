package hierdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yumyai/hiertax/internal/util"
	"github.com/yumyai/hiertax/logger"
	"github.com/yumyai/hiertax/pkg/model"
)

const schema = `
	CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE nodes (
		node_id   INTEGER PRIMARY KEY,
		parent_id INTEGER NOT NULL,
		label     TEXT NOT NULL,
		threshold REAL
	);
	CREATE TABLE models (
		node_id INTEGER PRIMARY KEY,
		kind    TEXT NOT NULL,
		payload BLOB NOT NULL
	);
`

// Save publishes the database atomically: the full sqlite file is
// written next to path and renamed over it, so a concurrent Load sees
// the old file or the new one, never a torn write.
func Save(d *Database, path string) error {

	if err := d.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); !util.DirExists(dir) {
		return fmt.Errorf("destination directory %s does not exist", dir)
	}

	tmp := util.TempSibling(path)
	if err := writeFile(d, tmp); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := util.PublishFile(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	logger.Info("Saved hierarchical database",
		zap.String("path", path),
		zap.String("database_id", d.ID),
		zap.Int("nodes", len(d.Tree.Nodes)),
		zap.Int("models", len(d.Models)))

	return nil
}

func writeFile(d *Database, path string) error {

	ctx := context.TODO()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	meta := map[string]string{
		"format_version": d.Version,
		"feature_width":  strconv.Itoa(d.Width),
		"database_id":    d.ID,
		"created_at":     d.CreatedAt.Format(time.RFC3339),
		"state_mask":     d.StateMask,
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}

	for id, node := range d.Tree.Nodes {
		var threshold any
		if t, ok := d.Thresholds[id]; ok {
			threshold = t
		}
		if _, err := tx.Exec(
			`INSERT INTO nodes (node_id, parent_id, label, threshold) VALUES (?, ?, ?, ?)`,
			id, node.Parent, node.Label, threshold); err != nil {
			return fmt.Errorf("insert node %d: %w", id, err)
		}
	}

	for id, classifier := range d.Models {
		kind, payload, err := model.Marshal(classifier)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO models (node_id, kind, payload) VALUES (?, ?, ?)`,
			id, kind, payload); err != nil {
			return fmt.Errorf("insert model for node %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
