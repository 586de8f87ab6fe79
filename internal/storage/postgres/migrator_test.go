package postgres

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationFS(map[string]string{
		"0002_orders.down.sql":  "DROP TABLE IF EXISTS orders;",
		"0001_catalog.up.sql":   "CREATE TABLE products (id TEXT);",
		"0002_orders.up.sql":    "CREATE TABLE orders (id TEXT);",
		"0001_catalog.down.sql": "DROP TABLE IF EXISTS products;",
	}))
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "0001_catalog", migrations[0].String())
	require.Equal(t, "0002_orders", migrations[1].String())
	require.Equal(t, "CREATE TABLE orders (id TEXT);", migrations[1].UpSQL)
}

func TestLoadMigrations_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "no files",
			files:   map[string]string{},
			wantErr: "no migration files",
		},
		{
			name:    "missing down",
			files:   map[string]string{"0001_catalog.up.sql": "CREATE TABLE products (id TEXT);"},
			wantErr: "both up and down",
		},
		{
			name:    "bad file name",
			files:   map[string]string{"catalog.sql": "SELECT 1;"},
			wantErr: "invalid migration file name",
		},
		{
			name:    "empty body",
			files:   map[string]string{"0001_catalog.up.sql": "  \n", "0001_catalog.down.sql": "DROP TABLE products;"},
			wantErr: "empty",
		},
		{
			name: "name differs between directions",
			files: map[string]string{
				"0001_catalog.up.sql":    "CREATE TABLE products (id TEXT);",
				"0001_products.down.sql": "DROP TABLE products;",
			},
			wantErr: "name mismatch",
		},
		{
			name: "gap in versions",
			files: map[string]string{
				"0001_catalog.up.sql":   "CREATE TABLE products (id TEXT);",
				"0001_catalog.down.sql": "DROP TABLE products;",
				"0003_orders.up.sql":    "CREATE TABLE orders (id TEXT);",
				"0003_orders.down.sql":  "DROP TABLE orders;",
			},
			wantErr: "contiguous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrations(migrationFS(tt.files))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPlanUp(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	require.Len(t, planUp(all, map[int64]bool{}, 0), 3)
	require.Empty(t, planUp(all, map[int64]bool{1: true, 2: true, 3: true}, 0))

	plan := planUp(all, map[int64]bool{1: true}, 1)
	require.Len(t, plan, 1)
	require.Equal(t, int64(2), plan[0].Version)
}

func TestPlanDown(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	plan, err := planDown(all, map[int64]bool{1: true, 2: true, 3: true}, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2}, []int64{plan[0].Version, plan[1].Version})

	plan, err = planDown(all, map[int64]bool{}, 1)
	require.NoError(t, err)
	require.Empty(t, plan)

	_, err = planDown(all, map[int64]bool{1: true, 4: true}, 1)
	require.ErrorContains(t, err, "unknown migration version 4")
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationsFS)
	require.NoError(t, err)

	want := []struct {
		name     string
		downVerb string
	}{
		{name: "catalog", downVerb: "DROP TABLE"},
		{name: "orders", downVerb: "DROP TABLE"},
		{name: "order_events", downVerb: "DROP TABLE"},
		{name: "payment_intent", downVerb: "DROP COLUMN"},
		{name: "idempotency_scope", downVerb: "DROP COLUMN"},
		{name: "outbox_claim", downVerb: "DROP COLUMN"},
		{name: "timeline_visibility", downVerb: "DROP COLUMN"},
	}
	require.Len(t, migrations, len(want))
	for i, w := range want {
		require.Equal(t, int64(i+1), migrations[i].Version)
		require.Equal(t, w.name, migrations[i].Name)
		require.Contains(t, migrations[i].DownSQL, w.downVerb, "down migration %s must undo its up step", w.name)
	}

	var upSQL strings.Builder
	for _, m := range migrations {
		upSQL.WriteString(m.UpSQL)
	}
	for _, table := range storefrontRelations {
		require.Contains(t, upSQL.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", "migrations must create %s", table)
	}
	for _, tc := range storefrontColumns {
		require.Contains(t, upSQL.String(), tc[1], "migrations must add %s.%s", tc[0], tc[1])
	}
}
