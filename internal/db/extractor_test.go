package db

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tordrt/pgschemadoc/internal/schema"
)

// fakeResponse answers queries containing every string in match
type fakeResponse struct {
	match   []string
	records []Record
	err     error
}

type fakeRunner struct {
	responses []fakeResponse
	queries   []string
}

func (f *fakeRunner) Query(_ context.Context, query string) ([]Record, error) {
	f.queries = append(f.queries, query)
	for _, r := range f.responses {
		matched := true
		for _, m := range r.match {
			if !strings.Contains(query, m) {
				matched = false
				break
			}
		}
		if matched {
			return r.records, r.err
		}
	}
	return nil, nil
}

func tablesResponse(names ...string) fakeResponse {
	records := make([]Record, 0, len(names))
	for _, n := range names {
		records = append(records, Record{n})
	}
	return fakeResponse{match: []string{"information_schema.tables"}, records: records}
}

func columnsResponse(table string, records ...Record) fakeResponse {
	return fakeResponse{
		match:   []string{"information_schema.columns", "table_name = '" + table + "'"},
		records: records,
	}
}

func constraintsResponse(table string, records ...Record) fakeResponse {
	return fakeResponse{
		match:   []string{"information_schema.table_constraints", "table_name = '" + table + "'"},
		records: records,
	}
}

func TestListTables(t *testing.T) {
	tests := []struct {
		name       string
		response   fakeResponse
		wantTables []schema.TableName
		wantErr    bool
	}{
		{
			name:       "sorted lexicographically",
			response:   tablesResponse("users", "invoices", "audit_log"),
			wantTables: []schema.TableName{"audit_log", "invoices", "users"},
		},
		{
			name:       "blank rows skipped",
			response:   tablesResponse("users", "", "invoices"),
			wantTables: []schema.TableName{"invoices", "users"},
		},
		{
			name:       "empty schema",
			response:   tablesResponse(),
			wantTables: []schema.TableName{},
		},
		{
			name: "query failure is returned",
			response: fakeResponse{
				match: []string{"information_schema.tables"},
				err:   &QueryError{Command: "psql", ExitCode: 2, Stderr: "connection refused"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{responses: []fakeResponse{tt.response}}
			got, err := NewExtractor(runner, "public").ListTables(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTables, got)
		})
	}
}

func TestTablesQuery(t *testing.T) {
	t.Run("default backup pattern", func(t *testing.T) {
		q := NewExtractor(&fakeRunner{}, "public").tablesQuery()
		assert.Contains(t, q, "table_schema = 'public'")
		assert.Contains(t, q, "table_type = 'BASE TABLE'")
		assert.Contains(t, q, "table_name NOT LIKE '%backup%'")
		assert.Contains(t, q, "ORDER BY table_name")
	})

	t.Run("custom pattern", func(t *testing.T) {
		q := NewExtractor(&fakeRunner{}, "sales").WithBackupPattern("bak_%").tablesQuery()
		assert.Contains(t, q, "table_schema = 'sales'")
		assert.Contains(t, q, "NOT LIKE 'bak_%'")
	})

	t.Run("pattern disabled", func(t *testing.T) {
		q := NewExtractor(&fakeRunner{}, "public").WithBackupPattern("").tablesQuery()
		assert.NotContains(t, q, "NOT LIKE")
	})

	t.Run("literals are quoted", func(t *testing.T) {
		q := NewExtractor(&fakeRunner{}, "o'brien").tablesQuery()
		assert.Contains(t, q, "table_schema = 'o''brien'")
	})
}

func TestFetchColumns(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		columnsResponse("users",
			Record{"id", "uuid", "", "NO", "gen_random_uuid()"},
			Record{"email", "character varying", "255", "NO", ""},
			Record{"broken", "text", "YES"},
			Record{"bio", "text", "", "YES", "", "extra"},
			Record{"nickname", "character varying", "40", "YES", "'anon'::character varying"},
		),
	}}

	columns, err := NewExtractor(runner, "public").FetchColumns(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, columns, 3, "records without exactly five fields are dropped")

	assert.Equal(t, "id", columns[0].Name)
	assert.Equal(t, "uuid", columns[0].Type)
	assert.Nil(t, columns[0].MaxLength)
	assert.False(t, columns[0].Nullable)
	require.NotNil(t, columns[0].Default)
	assert.Equal(t, "gen_random_uuid()", *columns[0].Default)

	assert.Equal(t, "email", columns[1].Name)
	require.NotNil(t, columns[1].MaxLength)
	assert.Equal(t, 255, *columns[1].MaxLength)
	assert.Nil(t, columns[1].Default)

	assert.Equal(t, "nickname", columns[2].Name)
	assert.True(t, columns[2].Nullable)
	assert.Equal(t, "character varying(40)", columns[2].TypeString())
}

func TestFetchColumnsQuery(t *testing.T) {
	runner := &fakeRunner{}
	_, err := NewExtractor(runner, "public").FetchColumns(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, runner.queries, 1)
	assert.Contains(t, runner.queries[0], "ORDER BY ordinal_position")
	assert.Contains(t, runner.queries[0], "table_name = 'users'")
}

func TestFetchConstraints(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		constraintsResponse("orders",
			Record{"UNIQUE", "orders_number_key"},
			Record{"FOREIGN KEY", "orders_user_id_fkey"},
			Record{"PRIMARY KEY", "orders_pkey"},
			Record{"CHECK", "total", "positive"},
			Record{"UNIQUE", "orders_number_key"},
			Record{"CHECK"},
		),
	}}

	constraints, err := NewExtractor(runner, "public").FetchConstraints(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, []schema.Constraint{
		{Kind: "CHECK", Name: "total|positive"},
		{Kind: "FOREIGN KEY", Name: "orders_user_id_fkey"},
		{Kind: "PRIMARY KEY", Name: "orders_pkey"},
		{Kind: "UNIQUE", Name: "orders_number_key"},
	}, constraints)
}

func TestExtractSchema(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		tablesResponse("users", "invoices"),
		columnsResponse("invoices", Record{"id", "integer", "", "NO", ""}),
		constraintsResponse("invoices", Record{"PRIMARY KEY", "invoices_pkey"}),
		columnsResponse("users", Record{"id", "uuid", "", "NO", ""}, Record{"name", "text", "", "YES", ""}),
	}}

	s, err := NewExtractor(runner, "public").ExtractSchema(context.Background(), ExtractOptions{})
	require.NoError(t, err)

	assert.Equal(t, "public", s.Name)
	require.Len(t, s.Tables, 2)
	assert.Equal(t, schema.TableName("invoices"), s.Tables[0].Name)
	assert.Len(t, s.Tables[0].Columns, 1)
	assert.Len(t, s.Tables[0].Constraints, 1)
	assert.Equal(t, schema.TableName("users"), s.Tables[1].Name)
	assert.Len(t, s.Tables[1].Columns, 2)
	assert.Empty(t, s.Tables[1].Constraints)

	// one enumeration, then columns and constraints per table in order
	require.Len(t, runner.queries, 5)
	assert.Contains(t, runner.queries[1], "'invoices'")
	assert.Contains(t, runner.queries[1], "information_schema.columns")
	assert.Contains(t, runner.queries[2], "information_schema.table_constraints")
	assert.Contains(t, runner.queries[3], "'users'")
}

func TestExtractSchemaFilters(t *testing.T) {
	tests := []struct {
		name       string
		opts       ExtractOptions
		wantTables []schema.TableName
	}{
		{
			name:       "include list",
			opts:       ExtractOptions{Tables: []string{"users", "orders", "missing"}},
			wantTables: []schema.TableName{"orders", "users"},
		},
		{
			name:       "exclude list",
			opts:       ExtractOptions{Exclude: []string{"orders"}},
			wantTables: []schema.TableName{"invoices", "users"},
		},
		{
			name:       "include and exclude",
			opts:       ExtractOptions{Tables: []string{"users", "orders"}, Exclude: []string{"users"}},
			wantTables: []schema.TableName{"orders"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{responses: []fakeResponse{tablesResponse("users", "orders", "invoices")}}
			s, err := NewExtractor(runner, "public").ExtractSchema(context.Background(), tt.opts)
			require.NoError(t, err)

			got := make([]schema.TableName, 0, len(s.Tables))
			for _, table := range s.Tables {
				got = append(got, table.Name)
			}
			assert.Equal(t, tt.wantTables, got)
		})
	}
}

func TestSelectTables(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{tablesResponse("users", "invoices", "audit_log")}}

	got, err := NewExtractor(runner, "public").SelectTables(context.Background(), ExtractOptions{
		Tables:  []string{"users", "audit_log"},
		Exclude: []string{"audit_log"},
	})
	require.NoError(t, err)
	assert.Equal(t, []schema.TableName{"users"}, got)
	assert.Len(t, runner.queries, 1, "selection runs only the enumeration query")

	failing := &fakeRunner{responses: []fakeResponse{{match: []string{"information_schema.tables"}, err: errors.New("boom")}}}
	_, err = NewExtractor(failing, "public").SelectTables(context.Background(), ExtractOptions{})
	assert.EqualError(t, err, "boom")
}

func TestExtractSchemaFailurePolicy(t *testing.T) {
	failing := func() *fakeRunner {
		return &fakeRunner{responses: []fakeResponse{
			tablesResponse("users"),
			{
				match: []string{"information_schema.columns"},
				err:   errors.New("server closed the connection unexpectedly"),
			},
			constraintsResponse("users", Record{"PRIMARY KEY", "users_pkey"}),
		}}
	}

	t.Run("lenient logs and continues", func(t *testing.T) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		s, err := NewExtractor(failing(), "public").
			WithPolicy(PolicyLenient).
			WithLogger(logger).
			ExtractSchema(context.Background(), ExtractOptions{})
		require.NoError(t, err)
		require.Len(t, s.Tables, 1)
		assert.Empty(t, s.Tables[0].Columns)
		assert.Len(t, s.Tables[0].Constraints, 1)
		assert.Contains(t, logs.String(), "failed to fetch columns")
		assert.Contains(t, logs.String(), "table=users")
	})

	t.Run("strict aborts", func(t *testing.T) {
		_, err := NewExtractor(failing(), "public").
			WithPolicy(PolicyStrict).
			ExtractSchema(context.Background(), ExtractOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to extract table users")
		assert.Contains(t, err.Error(), "server closed the connection unexpectedly")
	})

	t.Run("enumeration failure aborts under lenient", func(t *testing.T) {
		runner := &fakeRunner{responses: []fakeResponse{{
			match: []string{"information_schema.tables"},
			err:   errors.New("connection refused"),
		}}}
		_, err := NewExtractor(runner, "public").
			WithPolicy(PolicyLenient).
			ExtractSchema(context.Background(), ExtractOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list tables")
	})
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{in: "", want: PolicyLenient},
		{in: "lenient", want: PolicyLenient},
		{in: " Strict ", want: PolicyStrict},
		{in: "abort", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
