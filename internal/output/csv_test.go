package output_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/UnknownOlympus/muniflow/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var results = []models.AggregateResult{
	{MunicipalityCode: "13101", Timecode: "202505130900", TotalVolume: 120, PointCount: 4},
	{MunicipalityCode: "13102", Timecode: "202505130900", TotalVolume: 0, PointCount: 0},
}

func TestCSVWriter_Write(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filepath.Join(filet.TmpDir(t, ""), "data")

	writer := output.NewCSVWriter(dir, "202505130900")
	require.NoError(t, writer.Write(t.Context(), results))
	require.NoError(t, writer.Close())

	path := filepath.Join(dir, "traffic_by_municipality_202505130900.csv")
	assert.Equal(t, path, writer.Path())
	assert.True(t, filet.FileSays(t, path, []byte(
		"municipality_code,timecode,total_volume,point_count\n"+
			"13101,202505130900,120,4\n"+
			"13102,202505130900,0,0\n",
	)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestCSVWriter_Overwrite(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")

	writer := output.NewCSVWriter(dir, "202505130900")
	require.NoError(t, writer.Write(t.Context(), results))
	require.NoError(t, writer.Write(t.Context(), results[:1]))

	assert.True(t, filet.FileSays(t, writer.Path(), []byte(
		"municipality_code,timecode,total_volume,point_count\n"+
			"13101,202505130900,120,4\n",
	)))
}

func TestCSVWriter_DirectoryError(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	blocker := filepath.Join(dir, "file")
	filet.File(t, blocker, "not a directory")

	writer := output.NewCSVWriter(filepath.Join(blocker, "data"), "202505130900")
	err := writer.Write(t.Context(), results)

	require.ErrorContains(t, err, "failed to create output directory")
}
