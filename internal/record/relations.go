package record

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
)

// loadRelations attaches every requested relation with one query each.
func (m *Mapper) loadRelations(ctx context.Context, recs []Record) error {
	if len(m.with) == 0 || len(recs) == 0 {
		return nil
	}
	for _, name := range m.with {
		rel, ok := m.model.Relations[name]
		if !ok {
			return apperr.InvalidArgument("unknown relation %q on %s", name, m.model.Table)
		}
		if err := checkIdents(rel.Table, rel.ForeignKey, rel.LocalKey); err != nil {
			return err
		}
		grouped, err := m.fetchRelated(ctx, rel, recs)
		if err != nil {
			return err
		}
		for _, r := range recs {
			var group []Record
			if v, ok := r[rel.LocalKey]; ok && v != nil {
				group = grouped[keyOf(v)]
			}
			if rel.Kind == KindBelongsTo {
				if len(group) > 0 {
					r[name] = group[0]
				} else {
					r[name] = nil
				}
				continue
			}
			if group == nil {
				group = []Record{}
			}
			r[name] = group
		}
	}
	return nil
}

func (m *Mapper) fetchRelated(ctx context.Context, rel Relation, recs []Record) (map[string][]Record, error) {
	seen := make(map[string]bool, len(recs))
	ids := make([]any, 0, len(recs))
	for _, r := range recs {
		v, ok := r[rel.LocalKey]
		if !ok || v == nil {
			continue
		}
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, v)
	}
	grouped := make(map[string][]Record)
	if len(ids) == 0 {
		return grouped, nil
	}

	q := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)", rel.Table, rel.ForeignKey, placeholders(len(ids)))
	rows, err := m.conn.QueryContext(ctx, q, ids...)
	if err != nil {
		m.log.Error("relation query failed", zap.String("sql", q), zap.Any("params", ids), zap.Error(err))
		return nil, fmt.Errorf("record: load %s: %w", rel.Table, err)
	}
	related, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("record: scan %s: %w", rel.Table, err)
	}
	for _, rr := range related {
		for _, h := range rel.Hidden {
			delete(rr, h)
		}
		k := keyOf(rr[rel.ForeignKey])
		grouped[k] = append(grouped[k], rr)
	}
	return grouped, nil
}
