package record

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/restkit/internal/apperr"
	"github.com/iliyamo/restkit/internal/database"
)

// Create inserts data and returns the new id. Only fillable columns are
// written; audit columns are filled in when the table has them. A vetoing
// BeforeSave hook yields id 0 and no error.
func (m *Mapper) Create(ctx context.Context, actor Actor, data Record) (int64, error) {
	if err := checkIdents(m.model.Table); err != nil {
		return 0, err
	}
	row := m.fillable(data)
	m.audit(ctx, row, actor, true)

	if h := m.model.Hooks.BeforeSave; h != nil {
		ok, err := h(ctx, row, true)
		if err != nil || !ok {
			return 0, err
		}
	}
	if len(row) == 0 {
		return 0, apperr.InvalidArgument("nothing to insert into %s", m.model.Table)
	}

	cols := sortedKeys(row)
	if err := checkIdents(cols...); err != nil {
		return 0, err
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = row[c]
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.model.Table, strings.Join(cols, ", "), placeholders(len(cols)))

	res, err := m.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, m.writeError(q, cols, args, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record: last insert id: %w", err)
	}

	m.forgetCount(ctx)
	row[m.model.PrimaryKey] = id
	if h := m.model.Hooks.AfterSave; h != nil {
		h(ctx, row, true)
	}
	return id, nil
}

// Update writes the fillable subset of data to the row with the given id
// and always refreshes updated_at/updated_by. It reports whether a row
// matched.
func (m *Mapper) Update(ctx context.Context, actor Actor, id any, data Record) (bool, error) {
	if err := checkIdents(m.model.Table, m.model.PrimaryKey); err != nil {
		return false, err
	}
	row := m.fillable(data)
	m.audit(ctx, row, actor, false)

	if h := m.model.Hooks.BeforeSave; h != nil {
		ok, err := h(ctx, row, false)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(row) == 0 {
		return false, nil
	}

	cols := sortedKeys(row)
	if err := checkIdents(cols...); err != nil {
		return false, err
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = ?"
		args = append(args, row[c])
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		m.model.Table, strings.Join(sets, ", "), m.model.PrimaryKey)

	res, err := m.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return false, m.writeError(q, append(cols, m.model.PrimaryKey), args, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	row[m.model.PrimaryKey] = id
	if h := m.model.Hooks.AfterSave; h != nil {
		h(ctx, row, false)
	}
	return true, nil
}

// Delete removes the row with the given id and reports whether it existed.
func (m *Mapper) Delete(ctx context.Context, id any) (bool, error) {
	if err := checkIdents(m.model.Table, m.model.PrimaryKey); err != nil {
		return false, err
	}
	if h := m.model.Hooks.BeforeDelete; h != nil {
		ok, err := h(ctx, id)
		if err != nil || !ok {
			return false, err
		}
	}

	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", m.model.Table, m.model.PrimaryKey)
	res, err := m.conn.ExecContext(ctx, q, id)
	if err != nil {
		return false, m.writeError(q, []string{m.model.PrimaryKey}, []any{id}, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record: rows affected: %w", err)
	}
	m.forgetCount(ctx)
	if n == 0 {
		return false, nil
	}
	if h := m.model.Hooks.AfterDelete; h != nil {
		h(ctx, id)
	}
	return true, nil
}

// DeleteWhere removes every row matching conds. Empty conds are refused.
// Delete hooks do not run.
func (m *Mapper) DeleteWhere(ctx context.Context, conds map[string]any) (int64, error) {
	if len(conds) == 0 {
		return 0, apperr.InvalidArgument("refusing to delete from %s without conditions", m.model.Table)
	}
	if err := checkIdents(m.model.Table); err != nil {
		return 0, err
	}
	where, args, err := whereClause(conds)
	if err != nil {
		return 0, err
	}
	q := "DELETE FROM " + m.model.Table + where
	res, err := m.conn.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, m.writeError(q, nil, args, err)
	}
	m.forgetCount(ctx)
	return res.RowsAffected()
}

func (m *Mapper) fillable(data Record) Record {
	out := make(Record, len(data))
	if len(m.model.Fillable) == 0 {
		for k, v := range data {
			out[k] = v
		}
		return out
	}
	for _, f := range m.model.Fillable {
		if v, ok := data[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (m *Mapper) audit(ctx context.Context, row Record, actor Actor, insert bool) {
	p := m.model.Audit
	if p.Disabled {
		return
	}
	cols := m.schema.Columns(ctx, m.conn, m.model.Table)
	if len(cols) == 0 {
		return
	}
	has := make(map[string]bool, len(cols))
	for _, c := range cols {
		has[c] = true
	}

	f := p.Fields.withDefaults()
	now := p.stamp(m.now())
	uid, known := actorID(actor)

	set := func(col string, v any, overwrite bool) {
		if !has[col] {
			return
		}
		if _, present := row[col]; present && !overwrite {
			return
		}
		row[col] = v
	}

	if insert {
		set(f.CreatedAt, now, false)
		set(f.UpdatedAt, now, false)
		if known {
			set(f.CreatedBy, uid, false)
			set(f.UpdatedBy, uid, false)
		}
		return
	}
	set(f.UpdatedAt, now, true)
	if known {
		set(f.UpdatedBy, uid, true)
	}
}

// writeError logs the failed statement and classifies constraint
// violations. Hidden columns are masked in the logged parameters.
func (m *Mapper) writeError(q string, cols []string, args []any, err error) error {
	params := make([]any, len(args))
	for i, a := range args {
		if i < len(cols) && m.hidden[cols[i]] {
			params[i] = "[hidden]"
			continue
		}
		params[i] = a
	}
	if database.IsConstraint(err) {
		m.log.Error("storage constraint violated",
			zap.String("table", m.model.Table),
			zap.String("sql", q),
			zap.Any("params", params),
			zap.Error(err))
		return apperr.StorageConstraint(err)
	}
	m.log.Error("write failed",
		zap.String("table", m.model.Table),
		zap.String("sql", q),
		zap.Any("params", params),
		zap.Error(err))
	return fmt.Errorf("record: write %s: %w", m.model.Table, err)
}
