package attestation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticMeasurementSource(t *testing.T) {
	measurements := PublishedMeasurements{
		{
			MeasurementID: "test-1",
			Measurements: map[int]MeasurementValue{
				1: {Expected: "0102"},
				2: {Expected: "0304"},
			},
		},
	}

	source := NewStaticMeasurementSource(measurements)

	retrieved, err := source.GetAllowedMeasurements()
	require.NoError(t, err)
	require.Len(t, retrieved, 1)
	require.Equal(t, "test-1", retrieved[0].MeasurementID)
	require.Equal(t, "0102", retrieved[0].Measurements[1].Expected)
}

func TestVerifyMeasurementsMatch(t *testing.T) {
	allowed := PublishedMeasurements{
		{
			MeasurementID: "test-1",
			Measurements:  map[int]MeasurementValue{1: {Expected: "01"}, 2: {Expected: "02"}},
		},
		{
			MeasurementID: "test-2",
			Measurements:  map[int]MeasurementValue{1: {Expected: "03"}, 2: {Expected: "04"}},
		},
	}

	matched, err := VerifyMeasurementsMatch(allowed, Measurements{1: {0x01}, 2: {0x02}})
	require.NoError(t, err)
	require.Equal(t, "test-1", matched.MeasurementID)

	matched, err = VerifyMeasurementsMatch(allowed, Measurements{0: {0xaa}, 1: {0x03}, 2: {0x04}})
	require.NoError(t, err)
	require.Equal(t, "test-2", matched.MeasurementID)

	_, err = VerifyMeasurementsMatch(allowed, Measurements{1: {0x01}, 2: {0x04}})
	require.Error(t, err)

	_, err = VerifyMeasurementsMatch(allowed, Measurements{1: {0x01}})
	require.Error(t, err, "missing register must not match")
}

func TestMeasurementEntry_ToMeasurements(t *testing.T) {
	entry := MeasurementEntry{Measurements: map[int]MeasurementValue{1: {Expected: "beef"}}}
	m, err := entry.ToMeasurements()
	require.NoError(t, err)
	require.Equal(t, []byte{0xbe, 0xef}, m[1])

	entry.Measurements[2] = MeasurementValue{Expected: "zz"}
	_, err = entry.ToMeasurements()
	require.Error(t, err)
}

func TestRemoteMeasurementSource_Caches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(PublishedMeasurements{
			{MeasurementID: "remote", Measurements: map[int]MeasurementValue{1: {Expected: "01"}}},
		})
	}))
	defer srv.Close()

	source := NewRemoteMeasurementSource(srv.URL)

	first, err := source.GetAllowedMeasurements()
	require.NoError(t, err)
	require.Equal(t, "remote", first[0].MeasurementID)

	_, err = source.GetAllowedMeasurements()
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
}

func TestRemoteMeasurementSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewRemoteMeasurementSource(srv.URL).GetAllowedMeasurements()
	require.Error(t, err)
}
