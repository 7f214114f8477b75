package genome

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/yumyai/hiertax/internal/util"
	"github.com/yumyai/hiertax/logger"
	"github.com/yumyai/hiertax/pkg/hierdb"
)

const genomeSchema = `
	CREATE TABLE meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE genes (
		gene_id   TEXT PRIMARY KEY,
		db_path   TEXT NOT NULL,
		min_score REAL NOT NULL
	);
`

// Build aggregates single-gene databases and their score table into
// one genome database file. concat, when non-nil, points at the
// optional database trained on concatenated marker features. Every
// referenced database must load cleanly first; a threshold table
// pointing at a missing or incompatible database is a build error,
// not something to discover at classification time.
func Build(path string, refs []GeneRef, concat *GeneRef) error {

	if len(refs) == 0 {
		return fmt.Errorf("%w: empty gene table", ErrMissingGeneDatabase)
	}

	for _, ref := range refs {
		if _, err := hierdb.Load(ref.DBPath); err != nil {
			return fmt.Errorf("%w: gene %q: %v", ErrMissingGeneDatabase, ref.GeneID, err)
		}
	}
	if concat != nil {
		if _, err := hierdb.Load(concat.DBPath); err != nil {
			return fmt.Errorf("%w: concatenated database: %v", ErrMissingGeneDatabase, err)
		}
	}

	if dir := filepath.Dir(path); !util.DirExists(dir) {
		return fmt.Errorf("destination directory %s does not exist", dir)
	}

	tmp := util.TempSibling(path)
	if err := writeGenomeFile(tmp, refs, concat); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := util.PublishFile(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	logger.Info("Saved genome database",
		zap.String("path", path), zap.Int("genes", len(refs)))

	return nil
}

func writeGenomeFile(path string, refs []GeneRef, concat *GeneRef) error {

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

	if _, err := tx.Exec(genomeSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('format_version', ?)`,
		hierdb.FormatVersion); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	if concat != nil {
		if _, err := tx.Exec(
			`INSERT INTO meta (key, value) VALUES ('concat_db_path', ?), ('concat_min_score', ?)`,
			concat.DBPath, fmt.Sprintf("%g", concat.MinScore)); err != nil {
			return fmt.Errorf("insert concat meta: %w", err)
		}
	}

	for _, ref := range refs {
		if _, err := tx.Exec(
			`INSERT INTO genes (gene_id, db_path, min_score) VALUES (?, ?, ?)`,
			ref.GeneID, ref.DBPath, ref.MinScore); err != nil {
			return fmt.Errorf("insert gene %q: %w", ref.GeneID, err)
		}
	}

	return tx.Commit()
}

// Open reads a genome database and verifies every referenced
// single-gene database file still exists. The databases themselves
// load lazily, through the cache, on first use.
func Open(path string) (*Database, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("genome database %s: %w", path, err)
	}

	ctx := context.TODO()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	meta := make(map[string]string)
	metaRows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("%w: no meta table (%v)", hierdb.ErrCorruptDatabase, err)
	}
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			metaRows.Close()
			return nil, fmt.Errorf("%w: scanning meta (%v)", hierdb.ErrCorruptDatabase, err)
		}
		meta[k] = v
	}
	if err := metaRows.Err(); err != nil {
		metaRows.Close()
		return nil, fmt.Errorf("%w: reading meta (%v)", hierdb.ErrCorruptDatabase, err)
	}
	if err := metaRows.Close(); err != nil {
		return nil, fmt.Errorf("%w: reading meta (%v)", hierdb.ErrCorruptDatabase, err)
	}

	if v := meta["format_version"]; v != hierdb.FormatVersion {
		return nil, fmt.Errorf("%w: file has format version %q, this build reads %q",
			hierdb.ErrIncompatibleDatabase, v, hierdb.FormatVersion)
	}

	var concat *GeneRef
	if p, ok := meta["concat_db_path"]; ok {
		minScore, err := strconv.ParseFloat(meta["concat_min_score"], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad concat_min_score %q",
				hierdb.ErrCorruptDatabase, meta["concat_min_score"])
		}
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: concatenated database at %s: %v",
				ErrMissingGeneDatabase, p, err)
		}
		concat = &GeneRef{DBPath: p, MinScore: minScore}
	}

	rows, err := db.QueryContext(ctx, `SELECT gene_id, db_path, min_score FROM genes`)
	if err != nil {
		return nil, fmt.Errorf("%w: no genes table (%v)", hierdb.ErrCorruptDatabase, err)
	}
	defer rows.Close()

	genes := make(map[string]GeneRef)
	for rows.Next() {
		var ref GeneRef
		if err := rows.Scan(&ref.GeneID, &ref.DBPath, &ref.MinScore); err != nil {
			return nil, fmt.Errorf("%w: scanning gene row (%v)", hierdb.ErrCorruptDatabase, err)
		}
		if _, err := os.Stat(ref.DBPath); err != nil {
			return nil, fmt.Errorf("%w: gene %q points at %s: %v",
				ErrMissingGeneDatabase, ref.GeneID, ref.DBPath, err)
		}
		genes[ref.GeneID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading genes (%v)", hierdb.ErrCorruptDatabase, err)
	}

	cache, err := lru.New[string, *hierdb.Database](dbCacheSize)
	if err != nil {
		return nil, err
	}

	return &Database{genes: genes, concat: concat, cache: cache}, nil
}
