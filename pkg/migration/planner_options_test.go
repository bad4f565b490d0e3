package migration

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/marshallshelly/pebble-tombstone/pkg/schema"
)

func TestPlannerOptions_IfNotExists(t *testing.T) {
	table := &schema.TableMetadata{
		Name: "users",
		Columns: []schema.ColumnMetadata{
			{Name: "id", SQLType: "serial", Nullable: false},
			{Name: "email", SQLType: "varchar(255)", Nullable: false},
		},
		PrimaryKey: &schema.PrimaryKeyMetadata{
			Name:    "users_pkey",
			Columns: []string{"id"},
		},
		Indexes: []schema.IndexMetadata{
			{Name: "idx_users_email", Columns: []string{"email"}, Unique: true},
		},
	}

	t.Run("Default (IF NOT EXISTS enabled)", func(t *testing.T) {
		planner := NewPlanner("")
		sql := planner.generateCreateTable(table)

		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS users") {
			t.Errorf("Expected CREATE TABLE IF NOT EXISTS, got: %s", sql)
		}
		if !strings.Contains(sql, "CREATE UNIQUE INDEX IF NOT EXISTS") {
			t.Errorf("Expected CREATE UNIQUE INDEX IF NOT EXISTS, got: %s", sql)
		}

		up := planner.AddTombstoneColumns("users").UpSQL
		if !strings.Contains(up, "ADD COLUMN IF NOT EXISTS batch_id text") {
			t.Errorf("Expected ADD COLUMN IF NOT EXISTS, got: %s", up)
		}
	})

	t.Run("IF NOT EXISTS disabled", func(t *testing.T) {
		planner := NewPlannerWithOptions(PlannerOptions{IfNotExists: false})
		sql := planner.generateCreateTable(table)

		if !strings.Contains(sql, "CREATE TABLE users") {
			t.Errorf("Expected CREATE TABLE (without IF NOT EXISTS), got: %s", sql)
		}
		if strings.Contains(sql, "IF NOT EXISTS") {
			t.Errorf("Expected no IF NOT EXISTS, got: %s", sql)
		}
		if up := planner.AddTombstoneColumns("users").UpSQL; strings.Contains(up, "IF NOT EXISTS") {
			t.Errorf("Expected no IF NOT EXISTS, got: %s", up)
		}
	})

	t.Run("Actor column and clock", func(t *testing.T) {
		clk := testclock.NewClock(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
		planner := NewPlannerWithOptions(PlannerOptions{
			ActorTable:  "accounts",
			ActorColumn: "account_id",
			Clock:       clk,
		})

		m := planner.AddTombstoneColumns("posts")
		if m.Version != "20240305103000" {
			t.Errorf("Expected version from clock, got %s", m.Version)
		}
		if !strings.Contains(m.UpSQL, "REFERENCES accounts (account_id)") {
			t.Errorf("Expected reference to accounts.account_id, got: %s", m.UpSQL)
		}
	})
}
