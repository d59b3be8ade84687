package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkInsert_EmptyRows(t *testing.T) {
	n, err := BulkInsert(context.Background(), nil, "raw_trade", []string{"district"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkInsert_NoColumns(t *testing.T) {
	_, err := BulkInsert(context.Background(), nil, "raw_trade", nil, [][]any{{"11110"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkInsert_CopiesThroughTempTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"district", "legal_dong"}
	rows := [][]any{{"11110", "10100"}, {"11110", "10200"}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_insert_raw_trade"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_raw_trade"}, cols).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "raw_trade" \("district", "legal_dong"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkInsert(context.Background(), mock, "raw_trade", cols, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "conflict-skipped rows must not count")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"app_data.raw_rent", `"app_data"."raw_rent"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
