package sqlserver

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/JonMunkholm/exportappend/internal/store"
	"github.com/stretchr/testify/require"
)

func cells(n, width int) [][]store.Cell {
	rows := make([][]store.Cell, n)
	for i := range rows {
		rows[i] = make([]store.Cell, width)
		for j := range rows[i] {
			rows[i][j] = store.Text("v")
		}
	}
	return rows
}

func TestChunkRows(t *testing.T) {
	tests := []struct {
		name       string
		rows       int
		width      int
		wantChunks []int
	}{
		{"small batch fits one statement", 250, 3, []int{250}},
		{"wide table splits by parameter limit", 250, 20, []int{104, 104, 42}},
		{"narrow table capped by VALUES row limit", 1500, 1, []int{1000, 500}},
		{"empty", 0, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := chunkRows(cells(tt.rows, tt.width), tt.width)
			require.NoError(t, err)

			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			require.Equal(t, tt.wantChunks, sizes)
		})
	}
}

func TestChunkRows_TooWide(t *testing.T) {
	_, err := chunkRows(nil, 2100)
	require.Error(t, err)
}

func TestInsertRows_SplitsInsideOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := make([]string, 20)
	for i := range cols {
		cols[i] = "c"
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [pharmacy_export]")).WillReturnResult(sqlmock.NewResult(0, 104))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO [pharmacy_export]")).WillReturnResult(sqlmock.NewResult(0, 16))
	mock.ExpectCommit()

	n, err := New(db).InsertRows(context.Background(), "pharmacy_export", cols, cells(120, 20))
	require.NoError(t, err)
	require.Equal(t, int64(120), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRows_RollsBackBatchOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("String or binary data would be truncated"))
	mock.ExpectRollback()

	_, err = New(db).InsertRows(context.Background(), "t", []string{"a"}, cells(3, 1))
	require.ErrorContains(t, err, "truncated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestColumns_FlagsIdentityComputedAndRowversion(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sys.columns c")).
		WithArgs("[pantry_export]").
		WillReturnRows(sqlmock.NewRows([]string{"name", "generated"}).
			AddRow("id", true).
			AddRow("first_name", false).
			AddRow("full_name", true).
			AddRow("row_ver", true).
			AddRow("visit_date", false))

	cols, err := s.Columns(context.Background(), "pantry_export")
	require.NoError(t, err)
	require.Equal(t, []store.Column{
		{Name: "id", Generated: true},
		{Name: "first_name"},
		{Name: "full_name", Generated: true},
		{Name: "row_ver", Generated: true},
		{Name: "visit_date"},
	}, cols)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestColumns_QueryError(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("FROM sys.columns").WillReturnError(errors.New("Login failed for user 'importer'"))

	_, err := s.Columns(context.Background(), "pantry_export")
	require.ErrorContains(t, err, "columns of pantry_export")
	require.ErrorContains(t, err, "Login failed")
}

func TestRoutineExists(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.ROUTINES")).
		WithArgs("merge_households_from_pantry").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.ROUTINES")).
		WithArgs("missing_proc").
		WillReturnRows(sqlmock.NewRows([]string{"ok"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.ROUTINES")).
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	ok, err := s.RoutineExists(context.Background(), "merge_households_from_pantry")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.RoutineExists(context.Background(), "missing_proc")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.RoutineExists(context.Background(), "broken")
	require.ErrorContains(t, err, "routine broken")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTables_EscapesSuffix(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")).
		WithArgs(`%\_export`).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).
			AddRow("clinic_export").
			AddRow("pantry_export"))

	tables, err := s.ListTables(context.Background(), "_export")
	require.NoError(t, err)
	require.Equal(t, []string{"clinic_export", "pantry_export"}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallRoutine(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("EXEC [merge_households_from_pantry]")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, New(db).CallRoutine(context.Background(), "merge_households_from_pantry"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteIdent(t *testing.T) {
	require.Equal(t, "[a]]b]", QuoteIdent("a]b"))
}
