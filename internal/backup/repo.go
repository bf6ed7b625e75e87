package backup

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const restoreBatch = 200

type Repo struct {
	DB *gorm.DB
}

// Dump reads whole tables in one read-only transaction so the snapshot is
// consistent across tables.
func (r *Repo) Dump(ctx context.Context, tables []string) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(tables))
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range tables {
			rows := []map[string]any{}
			if err := tx.Table(t).Order("id").Find(&rows).Error; err != nil {
				return err
			}
			for _, row := range rows {
				for k, v := range row {
					// numeric columns arrive as raw bytes from some drivers
					if b, ok := v.([]byte); ok {
						row[k] = string(b)
					}
				}
			}
			out[t] = rows
		}
		return nil
	})
	return out, err
}

// Restore runs in one transaction. Table names come from Tables, never from
// the request.
func (r *Repo) Restore(ctx context.Context, tables []string, rows map[string][]map[string]any) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(tables) - 1; i >= 0; i-- {
			if err := tx.Exec("delete from " + tables[i]).Error; err != nil {
				return fmt.Errorf("clear %s: %w", tables[i], err)
			}
		}
		for _, t := range tables {
			rs := rows[t]
			if len(rs) == 0 {
				continue
			}
			for _, row := range rs {
				for k, v := range row {
					row[k] = revive(v)
				}
			}
			if err := tx.Table(t).CreateInBatches(rs, restoreBatch).Error; err != nil {
				return fmt.Errorf("restore %s: %w", t, err)
			}
			// explicit ids leave postgres sequences behind
			if tx.Dialector.Name() == "postgres" {
				q := fmt.Sprintf("select setval(pg_get_serial_sequence('%s', 'id'), coalesce(max(id), 1)) from %s", t, t)
				if err := tx.Exec(q).Error; err != nil {
					return fmt.Errorf("reset sequence %s: %w", t, err)
				}
			}
		}
		return nil
	})
}

// revive turns JSON timestamps back into time values so both dialects
// accept them.
func revive(v any) any {
	s, ok := v.(string)
	if !ok || len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return v
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return v
}
