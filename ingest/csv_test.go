package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV_HeaderDriven(t *testing.T) {
	text := "time,src_ip,user,status\n" +
		"2024-03-12T14:00:00Z,203.0.113.9,alice,401\n" +
		"2024-03-12T14:00:05Z,203.0.113.9,bob,200\n"

	rows, err := ParseCSV(text)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "2024-03-12T14:00:00Z", rows[0]["time"])
	assert.Equal(t, "alice", rows[0]["user"])
	assert.Equal(t, "401", rows[0]["status"])
	assert.Equal(t, "bob", rows[1]["user"])
}

func TestParseCSV_TrimsHeadersAndValues(t *testing.T) {
	text := " time , user \n" +
		" 2024-03-12T14:00:00Z ,  alice \n"

	rows, err := ParseCSV(text)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "2024-03-12T14:00:00Z", rows[0]["time"])
	assert.Equal(t, "alice", rows[0]["user"])
}

func TestParseCSV_RaggedRows(t *testing.T) {
	text := "time,user,status\n" +
		"2024-03-12T14:00:00Z,alice\n" +
		"2024-03-12T14:00:05Z,bob,200,extra,cells\n"

	rows, err := ParseCSV(text)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	short := rows[0]
	val, present := short["status"]
	assert.True(t, present, "missing cell still materializes its column")
	assert.Nil(t, val)

	long := rows[1]
	assert.Equal(t, "200", long["status"])
	assert.Len(t, long, 3, "surplus cells are dropped")
}

func TestParseCSV_QuotedFields(t *testing.T) {
	text := "user,raw\n" +
		`alice,"GET /search?q=a,b,c HTTP/1.1"` + "\n"

	rows, err := ParseCSV(text)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "GET /search?q=a,b,c HTTP/1.1", rows[0]["raw"])
}

func TestParseCSV_SkipsBlankLines(t *testing.T) {
	text := "user,status\n\nalice,401\n\n\nbob,200\n"

	rows, err := ParseCSV(text)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	rows, err := ParseCSV("time,user,status\n")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseCSV_EmptyInput(t *testing.T) {
	rows, err := ParseCSV("")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseCSV_NULByteRejected(t *testing.T) {
	rows, err := ParseCSV("user,status\nalice,\x00401\n")
	require.Error(t, err)
	assert.Nil(t, rows)
}
