package address

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVTableLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.csv")
	content := "법정동코드,법정동명,폐지여부\n" +
		"1111010100,서울특별시 종로구 청운동,존재\n" +
		"1111010200,서울특별시 종로구 신교동,폐지\n" +
		"2817710100,인천광역시 미추홀구 주안동,존재\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := CSVTableLoader{Path: path, UTF8: true}.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1111010100", table["서울특별시 종로구 청운동"])
	assert.Equal(t, "2817710100", table["인천광역시 미추홀구 주안동"])
	_, abolished := table["서울특별시 종로구 신교동"]
	assert.False(t, abolished, "abolished districts must not resolve")
}

func TestCSVTableLoaderMissingFile(t *testing.T) {
	_, err := CSVTableLoader{Path: "does-not-exist.csv", UTF8: true}.Load(context.Background())
	require.Error(t, err)
}

func TestCSVTableLoaderEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("법정동코드,법정동명,폐지여부\n"), 0o644))

	_, err := CSVTableLoader{Path: path, UTF8: true}.Load(context.Background())
	require.Error(t, err)
}
