package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openPaths guards against two engines opening the same durable file within
// one process; §9 of the design notes calls this undefined behavior, so the
// store refuses it outright rather than racing on the same file handle.
var (
	openPathsMu sync.Mutex
	openPaths   = make(map[string]struct{})
)

func registerPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("store: resolve path: %w", err)
	}
	openPathsMu.Lock()
	defer openPathsMu.Unlock()
	if _, ok := openPaths[abs]; ok {
		return "", fmt.Errorf("store: %q is already open in this process", abs)
	}
	openPaths[abs] = struct{}{}
	return abs, nil
}

func releasePath(abs string) {
	openPathsMu.Lock()
	defer openPathsMu.Unlock()
	delete(openPaths, abs)
}

// durableDB is the shared SQLite handle behind a node/layer store pair
// opened on the same file. Close is safe to call from both stores; the
// underlying handle and the path registration are released exactly once.
type durableDB struct {
	db  *sql.DB
	abs string

	closeOnce sync.Once
	closeErr  error
}

func openDurableDB(path string) (*durableDB, error) {
	abs, err := registerPath(path)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf(
		"file:%s?cache=shared&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=temp_store(MEMORY)",
		abs,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		releasePath(abs)
		return nil, fmt.Errorf("store: open %q: %w", abs, err)
	}
	db.SetMaxOpenConns(1) // shared-cache WAL file, single writer per process
	if err := initSchema(db); err != nil {
		db.Close()
		releasePath(abs)
		return nil, err
	}
	return &durableDB{db: db, abs: abs}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS nodes (id BLOB PRIMARY KEY, vector BLOB NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS neighbors (id BLOB PRIMARY KEY, data BLOB NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS layers (id BLOB PRIMARY KEY, layer BLOB NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (d *durableDB) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.db.Close()
		releasePath(d.abs)
	})
	return d.closeErr
}

// OpenDurable opens (creating if absent) a single-file durable backing at
// path and returns its node store and layer store, sharing one SQLite
// handle and one entry in the process-level open-path registry.
func OpenDurable(path string) (NodeStore, LayerStore, error) {
	handle, err := openDurableDB(path)
	if err != nil {
		return nil, nil, err
	}
	ns := &durableNodeStore{durableDB: handle, cache: make(map[NodeID]*ramNode), dirty: make(map[NodeID]bool)}
	if err := ns.loadEntryPoint(); err != nil {
		handle.Close()
		return nil, nil, err
	}
	ls := &durableLayerStore{durableDB: handle, cache: make(map[NodeID]int)}
	return ns, ls, nil
}

// durableNodeStore is the SQLite-backed NodeStore. Vector and entry-point
// writes are write-through; neighbor writes are write-behind, tracked by a
// per-id dirty flag and flushed on Flush/Close/batch boundaries.
type durableNodeStore struct {
	*durableDB

	mu    sync.RWMutex
	cache map[NodeID]*ramNode
	dirty map[NodeID]bool

	entryPoint NodeID
	hasEntry   bool
}

func (s *durableNodeStore) loadEntryPoint() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = 'entry_point'`).Scan(&value)
	if err == sql.ErrNoRows || value == "" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: load entry point: %w", err)
	}
	id, perr := parseNodeIDText(value)
	if perr != nil {
		return fmt.Errorf("store: corrupt entry point metadata: %w", perr)
	}
	s.entryPoint = id
	s.hasEntry = true
	return nil
}

func (s *durableNodeStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func (s *durableNodeStore) Add(ctx context.Context, id NodeID, vector []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: add: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO nodes(id, vector) VALUES(?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector`, id[:], EncodeVector(vector)); err != nil {
		return fmt.Errorf("store: add: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO neighbors(id, data) VALUES(?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, id[:], EncodeNeighbors(nil)); err != nil {
		return fmt.Errorf("store: add: %w", err)
	}
	setEntry := !s.hasEntry
	if setEntry {
		if err := writeEntryPointTx(ctx, tx, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: add: %w", err)
	}

	s.mu.Lock()
	s.cache[id] = &ramNode{vector: append([]float32(nil), vector...)}
	delete(s.dirty, id)
	if setEntry {
		s.entryPoint, s.hasEntry = id, true
	}
	s.mu.Unlock()
	return nil
}

func (s *durableNodeStore) AddBatch(ctx context.Context, items map[NodeID][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: add-batch: %w", err)
	}
	defer tx.Rollback()

	var firstNew NodeID
	setEntry := !s.hasEntry
	for id, vector := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO nodes(id, vector) VALUES(?, ?)
			ON CONFLICT(id) DO UPDATE SET vector = excluded.vector`, id[:], EncodeVector(vector)); err != nil {
			return fmt.Errorf("store: add-batch: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO neighbors(id, data) VALUES(?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`, id[:], EncodeNeighbors(nil)); err != nil {
			return fmt.Errorf("store: add-batch: %w", err)
		}
		if setEntry && firstNew.IsZero() {
			firstNew = id
		}
	}
	if setEntry && !firstNew.IsZero() {
		if err := writeEntryPointTx(ctx, tx, firstNew); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: add-batch: %w", err)
	}

	s.mu.Lock()
	for id, vector := range items {
		s.cache[id] = &ramNode{vector: append([]float32(nil), vector...)}
		delete(s.dirty, id)
	}
	if setEntry && !firstNew.IsZero() {
		s.entryPoint, s.hasEntry = firstNew, true
	}
	s.mu.Unlock()
	return nil
}

func (s *durableNodeStore) Remove(ctx context.Context, id NodeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: remove: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id[:]); err != nil {
		return fmt.Errorf("store: remove: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM neighbors WHERE id = ?`, id[:]); err != nil {
		return fmt.Errorf("store: remove: %w", err)
	}
	unsetEntry := s.hasEntry && s.entryPoint == id
	if unsetEntry {
		if err := writeEntryPointTx(ctx, tx, ZeroNodeID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: remove: %w", err)
	}
	s.mu.Lock()
	delete(s.cache, id)
	delete(s.dirty, id)
	if unsetEntry {
		s.hasEntry = false
		s.entryPoint = ZeroNodeID
	}
	s.mu.Unlock()
	return nil
}

func (s *durableNodeStore) RemoveBatch(ctx context.Context, ids []NodeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: remove-batch: %w", err)
	}
	defer tx.Rollback()
	unsetEntry := false
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id[:]); err != nil {
			return fmt.Errorf("store: remove-batch: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM neighbors WHERE id = ?`, id[:]); err != nil {
			return fmt.Errorf("store: remove-batch: %w", err)
		}
		if s.hasEntry && s.entryPoint == id {
			unsetEntry = true
		}
	}
	if unsetEntry {
		if err := writeEntryPointTx(ctx, tx, ZeroNodeID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: remove-batch: %w", err)
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.cache, id)
		delete(s.dirty, id)
	}
	if unsetEntry {
		s.hasEntry = false
		s.entryPoint = ZeroNodeID
	}
	s.mu.Unlock()
	return nil
}

// loadNode returns the cached node for id, loading it from disk into the
// process-level cache on first access.
func (s *durableNodeStore) loadNode(ctx context.Context, id NodeID) (*ramNode, error) {
	s.mu.RLock()
	n, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return n, nil
	}

	var vecBlob []byte
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM nodes WHERE id = ?`, id[:]).Scan(&vecBlob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	vector, err := DecodeVector(vecBlob)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}

	var neighBlob []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM neighbors WHERE id = ?`, id[:]).Scan(&neighBlob)
	var neighbors map[int][]NodeID
	if err == nil {
		neighbors, err = DecodeNeighbors(neighBlob)
		if err != nil {
			return nil, fmt.Errorf("store: get: %w", err)
		}
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("store: get: %w", err)
	}

	node := &ramNode{vector: vector, neighbors: neighbors}
	s.mu.Lock()
	if existing, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.cache[id] = node
	s.mu.Unlock()
	return node, nil
}

func (s *durableNodeStore) Get(ctx context.Context, id NodeID) (*Node, error) {
	n, err := s.loadNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshotRAMNode(n, id), nil
}

func (s *durableNodeStore) GetMany(ctx context.Context, ids []NodeID) (map[NodeID]*Node, error) {
	out := make(map[NodeID]*Node, len(ids))
	missing := make([]NodeID, 0, len(ids))
	s.mu.RLock()
	for _, id := range ids {
		if n, ok := s.cache[id]; ok {
			out[id] = snapshotRAMNode(n, id)
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()
	if len(missing) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(missing))
	args := make([]any, len(missing))
	for i, id := range missing {
		placeholders[i] = "?"
		args[i] = id[:]
	}
	query := fmt.Sprintf(`SELECT id, vector FROM nodes WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get-many: %w", err)
	}
	defer rows.Close()

	type loaded struct {
		id     NodeID
		vector []float32
	}
	var found []loaded
	for rows.Next() {
		var rawID, rawVec []byte
		if err := rows.Scan(&rawID, &rawVec); err != nil {
			return nil, fmt.Errorf("store: get-many: %w", err)
		}
		var id NodeID
		copy(id[:], rawID)
		vector, err := DecodeVector(rawVec)
		if err != nil {
			return nil, fmt.Errorf("store: get-many: %w", err)
		}
		found = append(found, loaded{id: id, vector: vector})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get-many: %w", err)
	}

	for _, f := range found {
		neighbors, err := s.loadNeighborsFromDB(ctx, f.id)
		if err != nil {
			return nil, err
		}
		node := &ramNode{vector: f.vector, neighbors: neighbors}
		s.mu.Lock()
		if existing, ok := s.cache[f.id]; ok {
			node = existing
		} else {
			s.cache[f.id] = node
		}
		s.mu.Unlock()
		out[f.id] = snapshotRAMNode(node, f.id)
	}
	return out, nil
}

func (s *durableNodeStore) loadNeighborsFromDB(ctx context.Context, id NodeID) (map[int][]NodeID, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM neighbors WHERE id = ?`, id[:]).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load neighbors: %w", err)
	}
	neighbors, err := DecodeNeighbors(data)
	if err != nil {
		return nil, fmt.Errorf("store: load neighbors: %w", err)
	}
	return neighbors, nil
}

func (s *durableNodeStore) Contains(ctx context.Context, id NodeID) (bool, error) {
	s.mu.RLock()
	_, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return true, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, id[:]).Scan(&n); err != nil {
		return false, fmt.Errorf("store: contains: %w", err)
	}
	return n > 0, nil
}

func (s *durableNodeStore) ListIDs(ctx context.Context) ([]NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("store: list-ids: %w", err)
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: list-ids: %w", err)
		}
		var id NodeID
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetNeighbors mutates the cached neighbor set and marks id dirty; the
// write to the neighbors table happens on Flush, batch boundaries, or
// Close, per the write-behind policy for neighbor edges.
func (s *durableNodeStore) SetNeighbors(ctx context.Context, id NodeID, layer int, ids []NodeID) error {
	n, err := s.loadNode(ctx, id)
	if err != nil {
		return err
	}
	n.mu.Lock()
	if len(ids) == 0 {
		delete(n.neighbors, layer)
	} else {
		if n.neighbors == nil {
			n.neighbors = make(map[int][]NodeID)
		}
		n.neighbors[layer] = append([]NodeID(nil), ids...)
	}
	n.mu.Unlock()

	s.mu.Lock()
	s.dirty[id] = true
	s.mu.Unlock()
	return nil
}

func (s *durableNodeStore) EntryPoint(ctx context.Context) (NodeID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entryPoint, s.hasEntry, nil
}

func (s *durableNodeStore) SetEntryPoint(ctx context.Context, id NodeID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: set entry point: %w", err)
	}
	defer tx.Rollback()
	if err := writeEntryPointTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: set entry point: %w", err)
	}
	s.mu.Lock()
	if id.IsZero() {
		s.hasEntry = false
		s.entryPoint = ZeroNodeID
	} else {
		s.entryPoint = id
		s.hasEntry = true
	}
	s.mu.Unlock()
	return nil
}

func writeEntryPointTx(ctx context.Context, tx *sql.Tx, id NodeID) error {
	value := ""
	if !id.IsZero() {
		value = nodeIDText(id)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO metadata(key, value) VALUES('entry_point', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, value); err != nil {
		return fmt.Errorf("store: write entry point: %w", err)
	}
	return nil
}

func (s *durableNodeStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{`DELETE FROM nodes`, `DELETE FROM neighbors`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: clear: %w", err)
		}
	}
	if err := writeEntryPointTx(ctx, tx, ZeroNodeID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	s.mu.Lock()
	s.cache = make(map[NodeID]*ramNode)
	s.dirty = make(map[NodeID]bool)
	s.hasEntry = false
	s.entryPoint = ZeroNodeID
	s.mu.Unlock()
	return nil
}

// Flush persists every dirty neighbor set in one transaction, the
// synchronization barrier write-behind neighbors rely on for correctness.
func (s *durableNodeStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	ids := make([]NodeID, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		s.mu.RLock()
		n := s.cache[id]
		s.mu.RUnlock()
		if n == nil {
			continue
		}
		n.mu.RLock()
		data := EncodeNeighbors(n.neighbors)
		n.mu.RUnlock()
		if _, err := tx.ExecContext(ctx, `INSERT INTO neighbors(id, data) VALUES(?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`, id[:], data); err != nil {
			return fmt.Errorf("store: flush: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}

	s.mu.Lock()
	for _, id := range ids {
		delete(s.dirty, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *durableNodeStore) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.durableDB.Close()
}

func snapshotRAMNode(n *ramNode, id NodeID) *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := &Node{ID: id, Vector: append([]float32(nil), n.vector...)}
	if n.neighbors != nil {
		out.Neighbors = make(map[int][]NodeID, len(n.neighbors))
		for layer, ids := range n.neighbors {
			out.Neighbors[layer] = append([]NodeID(nil), ids...)
		}
	}
	return out
}

// durableLayerStore is the SQLite-backed LayerStore, write-through with a
// lazily populated in-memory cache.
type durableLayerStore struct {
	*durableDB

	mu    sync.RWMutex
	cache map[NodeID]int
}

func (s *durableLayerStore) Get(ctx context.Context, id NodeID) (int, error) {
	s.mu.RLock()
	if l, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return l, nil
	}
	s.mu.RUnlock()

	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT layer FROM layers WHERE id = ?`, id[:]).Scan(&record)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: layer get: %w", err)
	}
	layer, err := DecodeLayer(record)
	if err != nil {
		return 0, fmt.Errorf("store: layer get: %w", err)
	}
	s.mu.Lock()
	s.cache[id] = layer
	s.mu.Unlock()
	return layer, nil
}

func (s *durableLayerStore) Set(ctx context.Context, id NodeID, layer int) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO layers(id, layer) VALUES(?, ?)
		ON CONFLICT(id) DO UPDATE SET layer = excluded.layer`, id[:], EncodeLayer(layer)); err != nil {
		return fmt.Errorf("store: layer set: %w", err)
	}
	s.mu.Lock()
	s.cache[id] = layer
	s.mu.Unlock()
	return nil
}

func (s *durableLayerStore) Remove(ctx context.Context, id NodeID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id[:]); err != nil {
		return fmt.Errorf("store: layer remove: %w", err)
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	return nil
}

func (s *durableLayerStore) Contains(ctx context.Context, id NodeID) (bool, error) {
	s.mu.RLock()
	if _, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return true, nil
	}
	s.mu.RUnlock()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers WHERE id = ?`, id[:]).Scan(&n); err != nil {
		return false, fmt.Errorf("store: layer contains: %w", err)
	}
	return n > 0, nil
}

func (s *durableLayerStore) ListIDs(ctx context.Context) ([]NodeID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM layers`)
	if err != nil {
		return nil, fmt.Errorf("store: layer list-ids: %w", err)
	}
	defer rows.Close()
	var out []NodeID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: layer list-ids: %w", err)
		}
		var id NodeID
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *durableLayerStore) AllEntries(ctx context.Context) (map[NodeID]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, layer FROM layers`)
	if err != nil {
		return nil, fmt.Errorf("store: layer all-entries: %w", err)
	}
	defer rows.Close()
	out := make(map[NodeID]int)
	for rows.Next() {
		var raw, record []byte
		if err := rows.Scan(&raw, &record); err != nil {
			return nil, fmt.Errorf("store: layer all-entries: %w", err)
		}
		layer, err := DecodeLayer(record)
		if err != nil {
			return nil, fmt.Errorf("store: layer all-entries: %w", err)
		}
		var id NodeID
		copy(id[:], raw)
		out[id] = layer
	}
	return out, rows.Err()
}

func (s *durableLayerStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM layers`); err != nil {
		return fmt.Errorf("store: layer clear: %w", err)
	}
	s.mu.Lock()
	s.cache = make(map[NodeID]int)
	s.mu.Unlock()
	return nil
}

func (s *durableLayerStore) Close() error {
	return s.durableDB.Close()
}

// nodeIDText renders id in the canonical UUID text form, matching the
// public hnswlite.NodeID.String() representation used elsewhere.
func nodeIDText(id NodeID) string {
	return uuid.UUID(id).String()
}

func parseNodeIDText(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ZeroNodeID, fmt.Errorf("store: parse entry point text: %w", err)
	}
	return NodeID(u), nil
}
