package mssql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockExecutor(t *testing.T) (*QueryExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &QueryExecutor{db: db}, mock
}

func TestQueryExecutor_Query_WrapsWithTop(t *testing.T) {
	exec, mock := newMockExecutor(t)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("Job Title").OfType("NVARCHAR", ""),
		sqlmock.NewColumn("Location").OfType("VARCHAR", ""),
		sqlmock.NewColumn("Salary").OfType("INT", 0),
	).
		AddRow("Data Engineer", []byte("Pune"), int64(1200000)).
		AddRow("ML Engineer", []byte("Bengaluru"), nil)

	mock.ExpectQuery("SELECT TOP (5) * FROM (SELECT [Job Title], [Location], [Salary] FROM [JobPostings]) AS _limited").
		WillReturnRows(rows)

	result, err := exec.Query(context.Background(), "SELECT [Job Title], [Location], [Salary] FROM [JobPostings];", 5)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"Job Title", "Location", "Salary"}, result.ColumnNames())
	assert.Equal(t, "TEXT", result.Columns[0].Type)
	assert.Equal(t, "INTEGER", result.Columns[2].Type)
	assert.Equal(t, "Pune", result.Rows[0]["Location"])
	assert.Nil(t, result.Rows[1]["Salary"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryExecutor_Query_CapsLimit(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery("SELECT TOP (1000) * FROM (SELECT 1 AS x) AS _limited").
		WillReturnRows(sqlmock.NewRows([]string{"x"}).AddRow(1))

	_, err := exec.Query(context.Background(), "SELECT 1 AS x", 50000)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryExecutor_Query_Error(t *testing.T) {
	exec, mock := newMockExecutor(t)

	mock.ExpectQuery("SELECT TOP (10) * FROM (SELECT [Nope] FROM [JobPostings]) AS _limited").
		WillReturnError(errors.New("Invalid column name 'Nope'."))

	_, err := exec.Query(context.Background(), "SELECT [Nope] FROM [JobPostings]", 10)
	assert.ErrorContains(t, err, "failed to execute query: Invalid column name 'Nope'.")
}

func TestQueryExecutor_TestConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{""}).AddRow(1))

	exec := &QueryExecutor{db: db}
	require.NoError(t, exec.TestConnection(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteName(t *testing.T) {
	assert.Equal(t, "[Job Title]", quoteName("Job Title"))
	assert.Equal(t, "[odd]]name]", quoteName("odd]name"))
}

func TestColumnType(t *testing.T) {
	tests := map[string]string{
		"nvarchar":       "TEXT",
		"DATETIME2":      "DATETIME",
		"DATETIMEOFFSET": "DATETIME",
		"bigint":         "INTEGER",
		"MONEY":          "NUMERIC",
		"geography":      "GEOGRAPHY",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, columnType(in))
		})
	}
}
