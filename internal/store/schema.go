package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// CorrectionsColumns holds the columns of the append-only correction log.
	CorrectionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "result_id", Type: field.TypeString},
		{Name: "note_id", Type: field.TypeString},
		{Name: "original_category", Type: field.TypeString},
		{Name: "corrected_category", Type: field.TypeString},
		{Name: "corrected_bucket", Type: field.TypeString, Default: ""},
		{Name: "corrected_tags", Type: field.TypeString, Default: "[]"},
		{Name: "signals", Type: field.TypeString, Default: "{}"},
		{Name: "contributions", Type: field.TypeString, Default: "{}"},
		{Name: "recorded_at", Type: field.TypeTime},
	}
	CorrectionsTable = &schema.Table{
		Name:       "corrections",
		Columns:    CorrectionsColumns,
		PrimaryKey: []*schema.Column{CorrectionsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "correction_note_id", Columns: []*schema.Column{CorrectionsColumns[3]}},
		},
	}

	// ClassificationsColumns holds the columns of the classification history.
	ClassificationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "note_id", Type: field.TypeString},
		{Name: "category", Type: field.TypeString},
		{Name: "raw_category", Type: field.TypeString, Default: ""},
		{Name: "bucket", Type: field.TypeString},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "fell_back", Type: field.TypeBool, Default: false},
		{Name: "degraded", Type: field.TypeBool, Default: false},
		{Name: "weights_version", Type: field.TypeInt64, Default: 0},
		{Name: "status", Type: field.TypeString},
		{Name: "payload", Type: field.TypeString},
		{Name: "classified_at", Type: field.TypeTime},
	}
	ClassificationsTable = &schema.Table{
		Name:       "classifications",
		Columns:    ClassificationsColumns,
		PrimaryKey: []*schema.Column{ClassificationsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "classification_note_id", Columns: []*schema.Column{ClassificationsColumns[2]}},
			{Name: "classification_status", Columns: []*schema.Column{ClassificationsColumns[10]}},
		},
	}

	// WeightSnapshotsColumns holds the columns of the weights snapshot table.
	WeightSnapshotsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "version", Type: field.TypeInt64},
		{Name: "schema_version", Type: field.TypeString},
		{Name: "last_sequence", Type: field.TypeInt64},
		{Name: "data", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
	}
	WeightSnapshotsTable = &schema.Table{
		Name:       "weight_snapshots",
		Columns:    WeightSnapshotsColumns,
		PrimaryKey: []*schema.Column{WeightSnapshotsColumns[0]},
	}

	// Tables lists every table managed by auto-migration.
	Tables = []*schema.Table{
		CorrectionsTable,
		ClassificationsTable,
		WeightSnapshotsTable,
	}
)
