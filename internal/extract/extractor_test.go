package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCommaDelimited(t *testing.T) {
	input := "Phone Number,Call Date,Duration (sec)\n" +
		"5550100123,2024-01-02 10:00:00,45\n" +
		"5550100124,2024-01-02 10:05:00,120\n"

	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Phone Number", "Call Date", "Duration (sec)"}, table.Header)
	assert.Equal(t, ',', table.Delimiter)
	assert.False(t, table.Headerless)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "5550100123", table.Get(table.Rows[0], "Phone Number"))
	assert.Equal(t, "120", table.Get(table.Rows[1], "Duration (sec)"))
}

func TestExtractDetectsSemicolonAndPipe(t *testing.T) {
	tests := []struct {
		name  string
		input string
		delim rune
	}{
		{"semicolon", "a;b;c\n1;2;3\n", ';'},
		{"pipe", "a|b|c\n1|2|3\n", '|'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Extract(strings.NewReader(tt.input), Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.delim, table.Delimiter)
			assert.Len(t, table.Rows, 1)
		})
	}
}

func TestExtractSkipsBannerLines(t *testing.T) {
	input := "This is system generated report\n" +
		"Input Value : 9990011223\n" +
		"\n" +
		"Calling Number,Called Number,Call Date\n" +
		"9990011223,5550100123,2024-03-01 09:30:00\n"

	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, table.Skipped)
	assert.Equal(t, []string{"Calling Number", "Called Number", "Call Date"}, table.Header)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "9990011223", table.Rows[0].Values[0])
}

func TestExtractHeaderless(t *testing.T) {
	input := "5550100123,2024-01-02 10:00:00,45\n" +
		"5550100124,2024-01-02 11:00:00,60\n"

	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.True(t, table.Headerless)
	assert.Equal(t, []string{"column_1", "column_2", "column_3"}, table.Header)
	assert.Len(t, table.Rows, 2)
}

func TestExtractFixedWidth(t *testing.T) {
	input := "Phone Number    Call Date            Duration\n" +
		"5550100123      2024-01-02 10:00:00  45\n" +
		"5550100124      2024-01-02 10:30:00  90\n"

	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)

	assert.True(t, table.FixedWidth)
	assert.Equal(t, []string{"Phone Number", "Call Date", "Duration"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2024-01-02 10:30:00", table.Get(table.Rows[1], "Call Date"))
}

func TestExtractStripsUTF8BOM(t *testing.T) {
	input := "\xEF\xBB\xBFnumber,date\n555,2024-01-01\n"
	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)
	assert.Equal(t, "number", table.Header[0])
}

func TestExtractQuotedFields(t *testing.T) {
	input := "number,message\n" +
		"5550100123,\"hello, world\"\n"
	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "hello, world", table.Get(table.Rows[0], "message"))
}

func TestExtractEmpty(t *testing.T) {
	_, err := Extract(strings.NewReader(""), Options{})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestExtractMaxRows(t *testing.T) {
	input := "a,b\n1,2\n3,4\n5,6\n"
	table, err := Extract(strings.NewReader(input), Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestRowMapPreservesColumns(t *testing.T) {
	input := "a,b,c\n1,2,3\n"
	table, err := Extract(strings.NewReader(input), Options{})
	require.NoError(t, err)
	m := table.RowMap(table.Rows[0])
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, m)
}
