package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
	"github.com/marshallshelly/pebble-tombstone/pkg/tombstone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gadget struct {
	tombstone.State
	ID        int64      `po:"id,primaryKey,bigserial"`
	OwnerID   *int64     `po:"owner_id,bigint"`
	Label     string     `po:"label,text,notNull"`
	UpdatedAt time.Time  `po:"updated_at,timestamptz"`
	Seen      *time.Time `po:"seen_at,timestamptz"`
}

type plain struct {
	Code string `po:"code,primaryKey,text"`
}

func parse(t *testing.T, model any) *schema.TableMetadata {
	t.Helper()
	table, err := schema.NewParser().Parse(reflect.TypeOf(model))
	require.NoError(t, err)
	return table
}

func TestScope_Validate(t *testing.T) {
	gadgets := parse(t, gadget{})
	plains := parse(t, plain{})

	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"table wide", Scope{Table: gadgets}, false},
		{"owner scope", Scope{Table: gadgets, ForeignKey: "owner_id", OwnerID: int64(1)}, false},
		{"batch scope", Scope{Table: gadgets, State: tombstone.Tombstoned, BatchID: "b"}, false},
		{"no table", Scope{}, true},
		{"key without owner", Scope{Table: gadgets, ForeignKey: "owner_id"}, true},
		{"owner without key", Scope{Table: gadgets, OwnerID: 1}, true},
		{"unknown key", Scope{Table: gadgets, ForeignKey: "nope", OwnerID: 1}, true},
		{"state on plain table", Scope{Table: plains, State: tombstone.Live}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChange_Assignments(t *testing.T) {
	gadgets := parse(t, gadget{})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	actor := int64(9)

	t.Run("delete", func(t *testing.T) {
		got, err := Change{Direction: tombstone.Delete, At: at, BatchID: "b", Actor: &actor}.Assignments(gadgets)
		require.NoError(t, err)
		assert.Equal(t, []Assignment{
			{Column: schema.ColumnTombstonedAt, Value: at.UTC()},
			{Column: schema.ColumnBatchID, Value: "b"},
			{Column: schema.ColumnTombstonedBy, Value: int64(9)},
			{Column: ColumnUpdatedAt, Value: at.UTC()},
		}, got)
	})

	t.Run("delete needs a batch", func(t *testing.T) {
		_, err := Change{Direction: tombstone.Delete, At: at}.Assignments(gadgets)
		assert.Error(t, err)
	})

	t.Run("restore keeps the actor", func(t *testing.T) {
		got, err := Change{Direction: tombstone.Restore, At: at}.Assignments(gadgets)
		require.NoError(t, err)
		assert.Equal(t, []Assignment{
			{Column: schema.ColumnTombstonedAt, Value: nil},
			{Column: schema.ColumnBatchID, Value: nil},
			{Column: ColumnUpdatedAt, Value: at.UTC()},
		}, got)
	})
}

func TestColumnAccess(t *testing.T) {
	gadgets := parse(t, gadget{})
	g := &gadget{Label: "a"}

	require.NoError(t, SetColumn(gadgets, g, "owner_id", 7))
	require.NotNil(t, g.OwnerID)
	assert.Equal(t, int64(7), *g.OwnerID)

	v, err := ColumnValue(gadgets, g, "owner_id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	require.NoError(t, SetColumn(gadgets, g, "owner_id", nil))
	assert.Nil(t, g.OwnerID)

	v, err = ColumnValue(gadgets, g, "seen_at")
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, SetColumn(gadgets, g, "label", 5))
	assert.Error(t, SetColumn(gadgets, g, "missing", 1))
	assert.Error(t, SetColumn(gadgets, gadget{}, "label", "x"))
	assert.Error(t, SetColumn(gadgets, &plain{}, "label", "x"))
}

func TestPrimaryKey(t *testing.T) {
	gadgets := parse(t, gadget{})
	g := &gadget{}

	_, ok, err := PrimaryKey(gadgets, g)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetPrimaryKey(gadgets, g, int32(12)))
	id, ok, err := PrimaryKey(gadgets, g)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)
}

func TestTouch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	g := &gadget{}
	require.NoError(t, Touch(parse(t, gadget{}), g, now))
	assert.Equal(t, now, g.UpdatedAt)

	assert.NoError(t, Touch(parse(t, plain{}), &plain{}, now))
}

func TestNormalizeKey(t *testing.T) {
	seven := int32(7)
	tests := []struct {
		in   any
		want any
	}{
		{7, int64(7)},
		{int32(7), int64(7)},
		{uint16(7), int64(7)},
		{float64(7), int64(7)},
		{7.5, 7.5},
		{&seven, int64(7)},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), "%#v", tt.in)
	}
}

func TestLessKey(t *testing.T) {
	assert.True(t, LessKey(int64(2), int64(10)))
	assert.False(t, LessKey(int64(10), int64(2)))
	assert.True(t, LessKey("a", "b"))
}

func TestNew(t *testing.T) {
	rec := New(parse(t, gadget{}))
	_, ok := rec.(*gadget)
	assert.True(t, ok)
	assert.NotNil(t, StateOf(rec))
	assert.Nil(t, StateOf(&plain{}))
}
