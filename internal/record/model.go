package record

import (
	"context"
	"time"
)

// Model is the declarative description of a table.
type Model struct {
	Table      string
	PrimaryKey string // defaults to "id"

	// Fillable lists the columns accepted on write. Empty accepts all.
	Fillable []string
	// Hidden columns are stripped from every read.
	Hidden []string

	Relations map[string]Relation
	Audit     AuditPolicy
	Hooks     Hooks
}

// RelationKind distinguishes one-to-many from many-to-one relations.
type RelationKind string

const (
	KindHasMany   RelationKind = "has_many"
	KindBelongsTo RelationKind = "belongs_to"
)

// Relation is matched with one batched query:
//
//	SELECT * FROM Table WHERE ForeignKey IN (<LocalKey values of the primary rows>)
type Relation struct {
	Kind       RelationKind
	Table      string
	ForeignKey string // column on Table
	LocalKey   string // column on the primary row
	Hidden     []string
}

// HasMany relates rows of table whose foreignKey equals this row's localKey,
// e.g. HasMany("posts", "user_id", "id") on users.
func HasMany(table, foreignKey, localKey string) Relation {
	return Relation{Kind: KindHasMany, Table: table, ForeignKey: foreignKey, LocalKey: localKey}
}

// BelongsTo relates the single row of table whose ownerKey equals this row's
// foreignKey, e.g. BelongsTo("users", "user_id", "id") on posts.
func BelongsTo(table, foreignKey, ownerKey string) Relation {
	return Relation{Kind: KindBelongsTo, Table: table, ForeignKey: ownerKey, LocalKey: foreignKey}
}

// TimestampFormat selects how audit timestamps are written.
type TimestampFormat string

const (
	TimestampDatetime TimestampFormat = "datetime" // 2006-01-02 15:04:05, UTC
	TimestampUnix     TimestampFormat = "unix"     // epoch seconds
)

const datetimeLayout = "2006-01-02 15:04:05"

// AuditFields overrides the audit column names. Empty fields use the defaults.
type AuditFields struct {
	CreatedAt string
	UpdatedAt string
	CreatedBy string
	UpdatedBy string
}

func (f AuditFields) withDefaults() AuditFields {
	if f.CreatedAt == "" {
		f.CreatedAt = "created_at"
	}
	if f.UpdatedAt == "" {
		f.UpdatedAt = "updated_at"
	}
	if f.CreatedBy == "" {
		f.CreatedBy = "created_by"
	}
	if f.UpdatedBy == "" {
		f.UpdatedBy = "updated_by"
	}
	return f
}

// AuditPolicy is enabled unless Disabled is set. Audit columns are only
// written when the table actually has them.
type AuditPolicy struct {
	Disabled        bool
	Fields          AuditFields
	TimestampFormat TimestampFormat
}

func (p AuditPolicy) stamp(t time.Time) any {
	if p.TimestampFormat == TimestampUnix {
		return t.Unix()
	}
	return t.UTC().Format(datetimeLayout)
}

// Hooks run around writes. Before hooks may mutate data and veto the write
// by returning false; an error aborts it.
type Hooks struct {
	BeforeSave   func(ctx context.Context, data Record, insert bool) (bool, error)
	AfterSave    func(ctx context.Context, data Record, insert bool)
	BeforeDelete func(ctx context.Context, id any) (bool, error)
	AfterDelete  func(ctx context.Context, id any)
}
