package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
)

type TestOwner struct {
	tombstone.State
	ID       int64           `po:"id,primaryKey,bigserial"`
	Items    []*TestItem     `po:"-,hasMany,foreignKey(owner_id),cascade(inline)"`
	Archive  []TestItem      `po:"-,hasMany,foreignKey(archive_owner_id),cascade(deferred),batchSize(250)"`
	Profile  *TestProfile    `po:"-,hasOne,foreignKey(owner_id),cascade(bulk-update)"`
	Notes    []*TestItem     `po:"-,hasMany,foreignKey(note_owner_id)"`
	Managers []*TestProfile  `po:"-,manyToMany,joinTable(owner_managers)"`
	Parent   *TestOwnerGroup `po:"-,belongsTo,foreignKey(group_id)"`
}

type TestItem struct {
	tombstone.State
	ID      int64 `po:"id,primaryKey,bigserial"`
	OwnerID int64 `po:"owner_id,bigint"`
}

type TestProfile struct {
	tombstone.State
	ID      int64 `po:"id,primaryKey,bigserial"`
	OwnerID int64 `po:"owner_id,bigint"`
}

type TestOwnerGroup struct {
	ID int64 `po:"id,primaryKey,bigserial"`
}

func TestParseRelationships(t *testing.T) {
	parser := NewParser()

	table, err := parser.Parse(reflect.TypeOf(TestOwner{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(table.Relationships) != 6 {
		t.Fatalf("expected 6 relationships, got %d", len(table.Relationships))
	}

	tests := []struct {
		field     string
		relType   RelationType
		fk        string
		target    reflect.Type
		cascade   CascadeMode
		batchSize int
	}{
		{"Items", HasMany, "owner_id", reflect.TypeOf(TestItem{}), CascadeInline, 0},
		{"Archive", HasMany, "archive_owner_id", reflect.TypeOf(TestItem{}), CascadeDeferred, 250},
		{"Profile", HasOne, "owner_id", reflect.TypeOf(TestProfile{}), CascadeBulkUpdate, 0},
		{"Notes", HasMany, "note_owner_id", reflect.TypeOf(TestItem{}), CascadeNone, 0},
		{"Managers", ManyToMany, "", reflect.TypeOf(TestProfile{}), CascadeNone, 0},
		{"Parent", BelongsTo, "group_id", reflect.TypeOf(TestOwnerGroup{}), CascadeNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			rel := table.GetRelationship(tt.field)
			if rel == nil {
				t.Fatalf("relationship %s not found", tt.field)
			}
			if rel.Type != tt.relType {
				t.Errorf("type: expected %s, got %s", tt.relType, rel.Type)
			}
			if rel.ForeignKey != tt.fk {
				t.Errorf("foreign key: expected %q, got %q", tt.fk, rel.ForeignKey)
			}
			if rel.TargetType != tt.target {
				t.Errorf("target: expected %s, got %s", tt.target, rel.TargetType)
			}
			if rel.Cascade != tt.cascade {
				t.Errorf("cascade: expected %s, got %s", tt.cascade, rel.Cascade)
			}
			if rel.BatchSize != tt.batchSize {
				t.Errorf("batch size: expected %d, got %d", tt.batchSize, rel.BatchSize)
			}
		})
	}

	t.Run("join table", func(t *testing.T) {
		rel := table.GetRelationship("Managers")
		if rel.JoinTable == nil || *rel.JoinTable != "owner_managers" {
			t.Errorf("unexpected join table %v", rel.JoinTable)
		}
	})

	t.Run("cascading relationships keep declaration order", func(t *testing.T) {
		cascading := table.CascadingRelationships()
		if len(cascading) != 3 {
			t.Fatalf("expected 3 cascading relationships, got %d", len(cascading))
		}
		want := []string{"Items", "Archive", "Profile"}
		for i, rel := range cascading {
			if rel.SourceField != want[i] {
				t.Errorf("position %d: expected %s, got %s", i, want[i], rel.SourceField)
			}
		}
	})

	t.Run("relationship fields are not columns", func(t *testing.T) {
		if len(table.Columns) != 4 {
			t.Errorf("expected 4 columns, got %d", len(table.Columns))
		}
	})

}

func TestParseRelationships_InvalidCascade(t *testing.T) {
	type Target struct {
		ID int64 `po:"id,primaryKey"`
	}

	type UnknownMode struct {
		ID    int64     `po:"id,primaryKey"`
		Items []*Target `po:"-,hasMany,cascade(bogus)"`
	}
	type OnBelongsTo struct {
		ID     int64   `po:"id,primaryKey"`
		Target *Target `po:"-,belongsTo,cascade(inline)"`
	}
	type OnManyToMany struct {
		ID      int64     `po:"id,primaryKey"`
		Targets []*Target `po:"-,manyToMany,cascade(deferred)"`
	}
	type BadBatchSize struct {
		ID    int64     `po:"id,primaryKey"`
		Items []*Target `po:"-,hasMany,cascade(deferred),batchSize(0)"`
	}
	type BatchSizeWithoutDeferred struct {
		ID    int64     `po:"id,primaryKey"`
		Items []*Target `po:"-,hasMany,cascade(inline),batchSize(10)"`
	}

	tests := []struct {
		name  string
		model any
	}{
		{"unknown mode", UnknownMode{}},
		{"belongsTo", OnBelongsTo{}},
		{"manyToMany", OnManyToMany{}},
		{"zero batch size", BadBatchSize{}},
		{"batch size without deferred", BatchSizeWithoutDeferred{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(reflect.TypeOf(tt.model))
			if !errors.Is(err, ErrInvalidCascade) {
				t.Errorf("expected ErrInvalidCascade, got %v", err)
			}
		})
	}
}

func TestParseRelationships_FieldShape(t *testing.T) {
	type Target struct {
		ID int64 `po:"id,primaryKey"`
	}
	type HasManyNotSlice struct {
		ID    int64   `po:"id,primaryKey"`
		Items *Target `po:"-,hasMany"`
	}

	if _, err := NewParser().Parse(reflect.TypeOf(HasManyNotSlice{})); err == nil {
		t.Error("expected error for hasMany on a non-slice field")
	}
}

func TestParseCascadeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CascadeMode
		wantErr bool
	}{
		{"", CascadeNone, false},
		{"none", CascadeNone, false},
		{"inline", CascadeInline, false},
		{"deferred", CascadeDeferred, false},
		{"bulkUpdate", CascadeBulkUpdate, false},
		{"bulk-update", CascadeBulkUpdate, false},
		{"destroy", CascadeNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCascadeMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCascadeMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCascadeMode(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
