package columnar

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Checkpoint flushes every dirty entity with one UPSERT each inside a single
// SQL transaction, then clears the dirty bits. A no-op when nothing is dirty.
func (s *Store) Checkpoint(ctx context.Context, trigger Trigger) error {
	dirty := s.buf.DirtyEntries()
	if len(dirty) == 0 {
		return nil
	}

	start := time.Now()
	entities := make(map[string]Entity, len(dirty))
	var totalBytes int64
	for id, v := range dirty {
		entity := v.(Entity)
		entities[id] = entity
		totalBytes += entitySize(entity)
	}

	now := time.Now().UnixMilli()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sql := s.schema.upsertSQL()
		for id, entity := range entities {
			if s.schema.CheckpointedAtField != "" {
				entity[s.schema.CheckpointedAtField] = now
			}
			args, err := s.toRowArgs(id, entity)
			if err != nil {
				return err
			}
			if err := tx.Exec(sql, args...).Error; err != nil {
				return fmt.Errorf("checkpointing %s/%s: %w", s.schema.Table, id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(entities))
	for id := range entities {
		keys = append(keys, id)
	}
	s.buf.MarkClean(keys)

	stats := CheckpointStats{
		EntityCount: len(entities),
		TotalBytes:  totalBytes,
		Duration:    time.Since(start),
		Trigger:     trigger,
	}

	s.mu.Lock()
	s.rowsWritten += uint64(len(entities))
	s.lastStats = stats
	s.mu.Unlock()

	if s.cfg.OnCheckpoint != nil {
		s.cfg.OnCheckpoint(entities, stats)
	}
	return nil
}

// LastCheckpoint returns the stats of the most recent checkpoint.
func (s *Store) LastCheckpoint() CheckpointStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}

// upsertOne writes a single entity row outside the batch path (dirty
// eviction).
func (s *Store) upsertOne(ctx context.Context, id string, entity Entity) error {
	args, err := s.toRowArgs(id, entity)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(s.schema.upsertSQL(), args...).Error
}

// toRowArgs orders the UPSERT bind arguments: primary key first, then the
// serialized fields in schema order.
func (s *Store) toRowArgs(id string, entity Entity) ([]any, error) {
	fields := s.schema.fieldNames()
	args := make([]any, 0, len(fields)+1)
	args = append(args, id)
	for _, name := range fields {
		col := s.schema.Columns[name]
		v := entity[name]
		if col.Serialize != nil && v != nil {
			sv, err := col.Serialize(v)
			if err != nil {
				return nil, fmt.Errorf("serializing field %s: %w", name, err)
			}
			v = sv
		}
		args = append(args, v)
	}
	return args, nil
}

// fromRow converts a scanned SQL row into an Entity, applying per-column
// deserializers.
func (s *Store) fromRow(id string, row map[string]any) (Entity, error) {
	entity := Entity{}
	for name, col := range s.schema.Columns {
		v, ok := row[s.schema.sqlColumn(name)]
		if !ok || v == nil {
			continue
		}
		if col.Deserialize != nil {
			dv, err := col.Deserialize(v)
			if err != nil {
				return nil, fmt.Errorf("deserializing field %s of %s: %w", name, id, err)
			}
			v = dv
		}
		entity[name] = v
	}
	return entity, nil
}
