package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]any
		want    *Config
		wantErr string
	}{
		{
			name:  "defaults",
			input: map[string]any{"host": "mysql", "user": "reader", "password": "pw", "database": "linkedin"},
			want:  &Config{Host: "mysql", Port: 3306, User: "reader", Password: "pw", Database: "linkedin", Timeout: 10 * time.Second},
		},
		{
			name:  "ssl_mode require maps to tls",
			input: map[string]any{"host": "mysql", "port": 3307, "user": "u", "database": "d", "ssl_mode": "require", "connection_timeout": "3"},
			want:  &Config{Host: "mysql", Port: 3307, User: "u", Database: "d", TLS: "true", Timeout: 3 * time.Second},
		},
		{
			name:    "missing user",
			input:   map[string]any{"host": "mysql", "database": "d"},
			wantErr: "user is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMap(tt.input)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "mysql.internal", Port: 3306, User: "reader", Password: "p@ss:word", Database: "linkedin", Timeout: 5 * time.Second}

	parsed, err := gomysql.ParseDSN(cfg.DSN())
	require.NoError(t, err)

	assert.Equal(t, "reader", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "mysql.internal:3306", parsed.Addr)
	assert.Equal(t, "linkedin", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, 5*time.Second, parsed.Timeout)
}

func TestQueryExecutor_Query(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	posted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT * FROM (SELECT `title`, `posted_on` FROM `jobs` WHERE `location` = 'Pune') AS _limited LIMIT 10").
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("title").OfType("varchar", ""),
			sqlmock.NewColumn("posted_on").OfType("datetime", time.Time{}),
		).AddRow([]byte("Backend Engineer"), posted))

	exec := &QueryExecutor{db: db}
	result, err := exec.Query(context.Background(), "SELECT `title`, `posted_on` FROM `jobs` WHERE `location` = 'Pune';", 10)
	require.NoError(t, err)

	require.Equal(t, 1, result.RowCount)
	assert.Equal(t, "VARCHAR", result.Columns[0].Type)
	assert.Equal(t, "Backend Engineer", result.Rows[0]["title"])
	assert.Equal(t, posted, result.Rows[0]["posted_on"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, "`Job Title`", quoteIdentifier("Job Title"))
	assert.Equal(t, "`a``b`", quoteIdentifier("a`b"))
}
