// File: internal/audit/audit.go
// Description: Append-only, tamper-evident audit log layered on the key-value
// store. Every recognized intent, generated decision and executed, cancelled
// or failed action lands here; statistics and compliance evidence are read
// back out.

package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// json sorts map keys on marshal so record hashes are deterministic.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const keyPrefix = "audit/"

// ErrChainBroken is returned by Verify when a record's hash no longer matches
// its content or its link to the previous record.
var ErrChainBroken = errors.New("audit chain integrity violation")

// Log implements schemas.AuditLog. Appends are single-writer: all mutation
// funnels through one mutex so records land in completion order and the hash
// chain never forks.
type Log struct {
	store  schemas.Store
	logger *zap.Logger

	mu       sync.Mutex
	sequence uint64
	lastHash string

	now func() time.Time
}

// New creates an audit log over the given store. Open must be called before
// the first Append so the chain tail is recovered from persisted records.
func New(store schemas.Store, logger *zap.Logger) (*Log, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		store:  store,
		logger: logger.Named("audit"),
		now:    time.Now,
	}, nil
}

// Open loads the persisted tail of the chain so new appends link onto it.
func (l *Log) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadLocked(ctx)
	if err != nil {
		return fmt.Errorf("failed to load audit records: %w", err)
	}
	if len(records) > 0 {
		tail := records[len(records)-1]
		l.sequence = tail.Sequence
		l.lastHash = tail.Hash
	}
	l.logger.Info("Audit log opened", zap.Int("records", len(records)), zap.Uint64("sequence", l.sequence))
	return nil
}

// Append implements schemas.AuditLog.
func (l *Log) Append(ctx context.Context, stage schemas.AuditStage, refID, userID string, detail map[string]interface{}) (schemas.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := schemas.AuditRecord{
		ID:        uuid.NewString(),
		Sequence:  l.sequence + 1,
		Timestamp: l.now().UTC(),
		Stage:     stage,
		RefID:     refID,
		UserID:    userID,
		Detail:    detail,
		PrevHash:  l.lastHash,
	}

	hash, err := recordHash(rec)
	if err != nil {
		return schemas.AuditRecord{}, fmt.Errorf("failed to hash audit record: %w", err)
	}
	rec.Hash = hash

	raw, err := json.Marshal(rec)
	if err != nil {
		return schemas.AuditRecord{}, fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := l.store.Set(ctx, recordKey(rec.Sequence), raw); err != nil {
		return schemas.AuditRecord{}, fmt.Errorf("failed to persist audit record: %w", err)
	}

	l.sequence = rec.Sequence
	l.lastHash = rec.Hash

	l.logger.Debug("Audit record appended",
		zap.String("stage", string(stage)),
		zap.Uint64("sequence", rec.Sequence),
		zap.String("ref_id", refID),
	)
	return rec, nil
}

// Records implements schemas.AuditLog, returning records in append order.
func (l *Log) Records(ctx context.Context) ([]schemas.AuditRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked(ctx)
}

// Verify implements schemas.AuditLog. It recomputes every record's hash and
// checks each link; the first record's PrevHash acts as the chain anchor so a
// pruned log still verifies.
func (l *Log) Verify(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadLocked(ctx)
	if err != nil {
		return err
	}

	prevHash := ""
	for i, rec := range records {
		if i == 0 {
			prevHash = rec.PrevHash
		}
		if rec.PrevHash != prevHash {
			return fmt.Errorf("%w: record %d has prev_hash %q, want %q", ErrChainBroken, rec.Sequence, rec.PrevHash, prevHash)
		}
		expected, err := recordHash(rec)
		if err != nil {
			return err
		}
		if rec.Hash != expected {
			return fmt.Errorf("%w: record %d content does not match its hash", ErrChainBroken, rec.Sequence)
		}
		prevHash = rec.Hash
	}
	return nil
}

// Prune implements schemas.AuditLog.
func (l *Log) Prune(ctx context.Context, before time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadLocked(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, rec := range records {
		if !rec.Timestamp.Before(before) {
			// Records are append-ordered; nothing later can be older.
			break
		}
		if err := l.store.Delete(ctx, recordKey(rec.Sequence)); err != nil {
			return pruned, fmt.Errorf("failed to prune audit record %d: %w", rec.Sequence, err)
		}
		pruned++
	}

	if pruned > 0 {
		l.logger.Info("Pruned audit records", zap.Int("count", pruned), zap.Time("before", before))
	}
	return pruned, nil
}

// Export implements schemas.AuditLog, writing records as NDJSON.
func (l *Log) Export(ctx context.Context, w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadLocked(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal audit record %d: %w", rec.Sequence, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write audit export: %w", err)
		}
	}
	return nil
}

// Stats implements schemas.AuditLog.
func (l *Log) Stats(ctx context.Context) (schemas.AuditStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadLocked(ctx)
	if err != nil {
		return schemas.AuditStats{}, err
	}

	stats := schemas.AuditStats{
		Total:   len(records),
		ByStage: make(map[schemas.AuditStage]int),
	}
	for i, rec := range records {
		stats.ByStage[rec.Stage]++
		if i == 0 {
			stats.Earliest = rec.Timestamp
		}
		stats.Latest = rec.Timestamp
	}
	return stats, nil
}

// loadLocked reads all persisted records in key (= append) order. Callers
// must hold l.mu.
func (l *Log) loadLocked(ctx context.Context) ([]schemas.AuditRecord, error) {
	keys, err := l.store.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]schemas.AuditRecord, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec schemas.AuditRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("corrupt audit record at %q: %w", key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// recordKey formats the store key so lexical order equals append order.
func recordKey(sequence uint64) string {
	return fmt.Sprintf("%s%016d", keyPrefix, sequence)
}

// recordHash computes the tamper-evidence hash: SHA-256 over the previous
// hash concatenated with the record's canonical JSON, Hash field zeroed.
func recordHash(rec schemas.AuditRecord) (string, error) {
	rec.Hash = ""
	canonical, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(rec.PrevHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

var _ schemas.AuditLog = (*Log)(nil)
