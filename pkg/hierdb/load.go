package hierdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yumyai/hiertax/pkg/model"
	"github.com/yumyai/hiertax/pkg/taxonomy"
)

// Load reads a database written by Save and refuses to return
// anything partially usable: version and width are checked before the
// structure, and every structural inconsistency is ErrCorruptDatabase.
func Load(path string) (*Database, error) {

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database file %s: %w", path, err)
	}

	ctx := context.TODO()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	version := meta["format_version"]
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: file has format version %q, this build reads %q",
			ErrIncompatibleDatabase, version, FormatVersion)
	}

	width, err := strconv.Atoi(meta["feature_width"])
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("%w: bad feature width %q", ErrCorruptDatabase, meta["feature_width"])
	}

	tree, thresholds, err := readNodes(ctx, db)
	if err != nil {
		return nil, err
	}

	models, err := readModels(ctx, db)
	if err != nil {
		return nil, err
	}

	d := &Database{
		ID:         meta["database_id"],
		Version:    version,
		Width:      width,
		StateMask:  meta["state_mask"],
		Tree:       tree,
		Models:     models,
		Thresholds: thresholds,
	}
	if at, err := time.Parse(time.RFC3339, meta["created_at"]); err == nil {
		d.CreatedAt = at
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	return d, nil
}

func readMeta(ctx context.Context, db *sql.DB) (map[string]string, error) {

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("%w: no meta table (%v)", ErrCorruptDatabase, err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: scanning meta (%v)", ErrCorruptDatabase, err)
		}
		meta[k] = v
	}

	return meta, rows.Err()
}

func readNodes(ctx context.Context, db *sql.DB) (*taxonomy.Tree, map[int]float64, error) {

	rows, err := db.QueryContext(ctx,
		`SELECT node_id, parent_id, label, threshold FROM nodes ORDER BY node_id`)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: no nodes table (%v)", ErrCorruptDatabase, err)
	}
	defer rows.Close()

	tree := &taxonomy.Tree{}
	thresholds := make(map[int]float64)

	for rows.Next() {
		var (
			id, parent int
			label      string
			threshold  sql.NullFloat64
		)
		if err := rows.Scan(&id, &parent, &label, &threshold); err != nil {
			return nil, nil, fmt.Errorf("%w: scanning node row (%v)", ErrCorruptDatabase, err)
		}

		if id != len(tree.Nodes) {
			return nil, nil, fmt.Errorf("%w: node ids not contiguous at %d", ErrCorruptDatabase, id)
		}
		if id == taxonomy.RootID {
			if parent != -1 {
				return nil, nil, fmt.Errorf("%w: root has parent %d", ErrCorruptDatabase, parent)
			}
		} else if parent < 0 || parent >= id {
			// Children are written after their parents, so a forward
			// or negative reference means the file is damaged.
			return nil, nil, fmt.Errorf("%w: node %d references parent %d", ErrCorruptDatabase, id, parent)
		}

		tree.Nodes = append(tree.Nodes, taxonomy.Node{Label: label, Parent: parent})
		if id != taxonomy.RootID {
			for _, sib := range tree.Nodes[parent].Children {
				if tree.Nodes[sib].Label == label {
					return nil, nil, fmt.Errorf("%w: duplicate sibling label %q under node %d",
						ErrCorruptDatabase, label, parent)
				}
			}
			tree.Nodes[parent].Children = append(tree.Nodes[parent].Children, id)
		}

		if threshold.Valid {
			thresholds[id] = threshold.Float64
		}
	}

	return tree, thresholds, rows.Err()
}

func readModels(ctx context.Context, db *sql.DB) (map[int]model.Classifier, error) {

	rows, err := db.QueryContext(ctx, `SELECT node_id, kind, payload FROM models`)
	if err != nil {
		return nil, fmt.Errorf("%w: no models table (%v)", ErrCorruptDatabase, err)
	}
	defer rows.Close()

	models := make(map[int]model.Classifier)
	for rows.Next() {
		var (
			id      int
			kind    string
			payload []byte
		)
		if err := rows.Scan(&id, &kind, &payload); err != nil {
			return nil, fmt.Errorf("%w: scanning model row (%v)", ErrCorruptDatabase, err)
		}

		c, err := model.Unmarshal(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrCorruptDatabase, id, err)
		}
		models[id] = c
	}

	return models, rows.Err()
}
