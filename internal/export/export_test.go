package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jwulff/sensorwatch/internal/sensor"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture holds buffers for three channels. Temperature only has a reading
// from the day before the range.
func fixture(t *testing.T) map[sensor.Channel][]sensor.Reading {
	t.Helper()
	n := sensor.NewNormalizer(time.UTC, "")
	norm := func(snap sensor.Snapshot) []sensor.Reading {
		r, err := n.Normalize(snap)
		require.NoError(t, err)
		return r
	}
	return map[sensor.Channel][]sensor.Reading{
		"ph": norm(sensor.Snapshot{
			"a": sensor.Sample(1577840400, 7.25),
			"b": sensor.Sample(1577836800, 7.1),
		}),
		"tds": norm(sensor.Snapshot{
			"a": sensor.Sample(1577844000, 410),
		}),
		"temperature": norm(sensor.Snapshot{
			"a": sensor.Sample(1577750400, 19.5),
		}),
	}
}

func day2020(t *testing.T) sensor.DateRange {
	t.Helper()
	rng, err := sensor.ParseDateRange("2020-01-01", "2020-01-01", time.UTC)
	require.NoError(t, err)
	return rng
}

func TestBuildSheetPerChannel(t *testing.T) {
	buffers := fixture(t)
	rng := day2020(t)

	wb := Build(sensor.DefaultChannels, func(ch sensor.Channel) []sensor.Reading {
		return sensor.Filter(buffers[ch], rng)
	})

	require.Len(t, wb.Sheets, 3)
	assert.Equal(t, "PH", wb.Sheets[0].Name)
	assert.Equal(t, "TDS", wb.Sheets[1].Name)
	assert.Equal(t, "TEMPERATURE", wb.Sheets[2].Name)
	assert.Equal(t, []Row{{"2020-01-01 00:00:00", 7.1}, {"2020-01-01 01:00:00", 7.25}}, wb.Sheets[0].Rows)
	assert.NotNil(t, wb.Sheets[2].Rows)
	assert.Empty(t, wb.Sheets[2].Rows)
}

func TestScenarioDRoundTripsThroughXLSX(t *testing.T) {
	buffers := fixture(t)
	rng := day2020(t)

	wb := Build(sensor.DefaultChannels, func(ch sensor.Channel) []sensor.Reading {
		return sensor.Filter(buffers[ch], rng)
	})

	var xlsx bytes.Buffer
	_, err := wb.WriteTo(&xlsx)
	require.NoError(t, err)

	back, err := Read(&xlsx)
	require.NoError(t, err)
	assert.Equal(t, wb, back)

	var dump bytes.Buffer
	require.NoError(t, back.Dump(&dump))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "scenario_d", dump.Bytes())
}

func TestExportIsIdempotent(t *testing.T) {
	buffers := fixture(t)
	dir := t.TempDir()
	e := &Exporter{
		Dir:      dir,
		Channels: sensor.DefaultChannels,
		Series: func(ch sensor.Channel, rng sensor.DateRange) []sensor.Reading {
			return sensor.Filter(buffers[ch], rng)
		},
	}

	path, err := e.Export(day2020(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "SensorData.xlsx"), path)
	first, err := ReadFile(path)
	require.NoError(t, err)

	_, err = e.Export(day2020(t))
	require.NoError(t, err)
	second, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestExportUnsetRangeKeepsEverything(t *testing.T) {
	buffers := fixture(t)
	e := &Exporter{
		Dir:      t.TempDir(),
		Name:     "all",
		Channels: sensor.DefaultChannels,
		Series: func(ch sensor.Channel, rng sensor.DateRange) []sensor.Reading {
			return sensor.Filter(buffers[ch], rng)
		},
	}

	path, err := e.Export(sensor.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "all.xlsx", filepath.Base(path))

	wb, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 3)
	assert.Len(t, wb.Sheets[2].Rows, 1)
	assert.Equal(t, "2019-12-31 00:00:00", wb.Sheets[2].Rows[0].Time)
}

func TestExportWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	e := &Exporter{
		Dir:      filepath.Join(blocker, "sub"),
		Channels: []sensor.Channel{"ph"},
		Series:   func(sensor.Channel, sensor.DateRange) []sensor.Reading { return nil },
	}

	_, err := e.Export(sensor.DateRange{})
	require.Error(t, err)

	var xerr *Error
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, "mkdir", xerr.Op)
	assert.Contains(t, err.Error(), "export mkdir")
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Op: "write", Path: "/x/SensorData.xlsx", Err: os.ErrPermission}
	assert.Equal(t, "export write /x/SensorData.xlsx: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, "export build: boom", (&Error{Op: "build", Err: errors.New("boom")}).Error())
}
