package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleGGA = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	sampleRMC = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	sampleGSV = "$GPGSV,2,1,08,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45*75"
)

func TestTrackGGA(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleGGA)

	st := track.Status()
	require.NotNil(t, st.Current)
	assert.InDelta(t, 48.1173, st.Current.Latitude, 0.0001)
	assert.InDelta(t, 11.516666, st.Current.Longitude, 0.0001)
	assert.InDelta(t, 545.4, st.Current.Elevation, 0.01)
	assert.Equal(t, 1, st.Current.Quality)
	assert.Equal(t, 8, st.Current.Satellites)
	assert.Equal(t, 1, st.Sentences)
	assert.Len(t, track.Fixes(), 1)
}

func TestTrackRMC(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleRMC)

	st := track.Status()
	require.NotNil(t, st.Current)
	assert.InDelta(t, 48.1173, st.Current.Latitude, 0.0001)
	assert.Len(t, track.Fixes(), 1)
}

func TestTrackGSV(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleGSV)

	st := track.Status()
	assert.Nil(t, st.Current)
	assert.Equal(t, 8, st.SatellitesInView)
	assert.Empty(t, track.Fixes())
}

func TestTrackIgnoresOtherTraffic(t *testing.T) {
	track := NewTrack(10)
	track.Append("hello world")
	track.Append("")
	track.Append("AT+OK")

	st := track.Status()
	assert.Zero(t, st.Sentences)
	assert.Zero(t, st.Invalid)
}

func TestTrackCountsInvalidSentences(t *testing.T) {
	track := NewTrack(10)
	track.Append("$GPGGA,garbage*00")
	track.Append(strings.Replace(sampleGGA, "*47", "*00", 1))

	st := track.Status()
	assert.Equal(t, 2, st.Invalid)
	assert.Zero(t, st.Sentences)
	assert.Nil(t, st.Current)
}

func TestTrackLosesFix(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleGGA)
	require.NotNil(t, track.Status().Current)

	track.Append("$GPGGA,123520,4807.038,N,01131.000,E,0,00,99.9,0.0,M,0.0,M,,*4F")
	assert.Nil(t, track.Status().Current)
	assert.Len(t, track.Fixes(), 1)
}

func TestTrackReset(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleGGA)
	track.Append(sampleGSV)
	track.Reset()

	st := track.Status()
	assert.Nil(t, st.Current)
	assert.Zero(t, st.Sentences)
	assert.Zero(t, st.SatellitesInView)
	assert.Empty(t, track.Fixes())
}

func TestParseFixQuality(t *testing.T) {
	assert.Equal(t, 0, parseFixQuality("0"))
	assert.Equal(t, 1, parseFixQuality("1"))
	assert.Equal(t, 6, parseFixQuality("6"))
	assert.Equal(t, 0, parseFixQuality(""))
	assert.Equal(t, 0, parseFixQuality("9"))
}

func TestExportKML(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleGGA)
	track.Append(sampleRMC)

	filename := filepath.Join(t.TempDir(), "track.kml")
	require.NoError(t, track.ExportKML(filename, "test"))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "<kml")
	assert.Contains(t, out, "<Folder>")
	assert.Contains(t, out, "fix-1")
	assert.Contains(t, out, "fix-2")
	assert.Contains(t, out, "<LineString>")
	assert.Contains(t, out, "11.51")
}

func TestExportKMLSingleFixHasNoPath(t *testing.T) {
	track := NewTrack(10)
	track.Append(sampleGGA)

	filename := filepath.Join(t.TempDir(), "track.kml")
	require.NoError(t, track.ExportKML(filename, "test"))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<LineString>")
}

func TestExportKMLEmpty(t *testing.T) {
	track := NewTrack(10)
	assert.Error(t, track.ExportKML(filepath.Join(t.TempDir(), "track.kml"), "test"))
}

func TestSmoothPath(t *testing.T) {
	// collinear points collapse to the endpoints
	line := []Fix{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0.001, Longitude: 0.001},
		{Latitude: 0.002, Longitude: 0.002},
	}
	assert.Equal(t, []Fix{line[0], line[2]}, smoothPath(line))

	// a corner survives
	corner := []Fix{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.01},
		{Latitude: 0.01, Longitude: 0.01},
	}
	assert.Equal(t, corner, smoothPath(corner))

	assert.Len(t, smoothPath(corner[:2]), 2)
}
