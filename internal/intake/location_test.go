package intake

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oniqq60/civic_report_system/internal/task"
)

func TestParseLocationObject(t *testing.T) {
	loc := ParseLocation(map[string]any{"lat": 17.4, "lng": 78.4, "address": "Ameerpet", "floor": "2"})

	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 17.4, *loc.Lat)
	assert.Equal(t, 78.4, *loc.Lng)
	assert.Equal(t, "Ameerpet", loc.Address)
	assert.Equal(t, "2", loc.Floor)
	assert.Equal(t, task.LocationMixed, loc.Kind())
}

func TestParseLocationJSONString(t *testing.T) {
	loc := ParseLocation(`{"latitude":"17.4","longitude":"78.4"}`)

	assert.Equal(t, task.LocationCoordinates, loc.Kind())
	assert.Equal(t, 17.4, *loc.Lat)
}

func TestParseLocationNestedStringField(t *testing.T) {
	payload := map[string]any{
		"location":     `{"lat":17.4,"lng":78.4}`,
		"sector":       "B-block",
		"instructions": "near the bus stop",
	}
	loc := ParseLocation(payload)

	assert.Equal(t, task.LocationCoordinates, loc.Kind())
	assert.Equal(t, "B-block", loc.Sector)
	assert.Equal(t, "near the bus stop", loc.Instructions)
}

func TestParseLocationDoubleEncoded(t *testing.T) {
	inner, err := json.Marshal(`{"address":"Kukatpally Main Road","location":"{\"lat\":17.49,\"lng\":78.39}"}`)
	require.NoError(t, err)

	loc := ParseLocation(string(inner))
	assert.Equal(t, task.LocationMixed, loc.Kind())
	assert.Equal(t, "Kukatpally Main Road", loc.Address)
	assert.Equal(t, 17.49, *loc.Lat)
}

func TestParseLocationFallsBackToAddress(t *testing.T) {
	loc := ParseLocation("{not json near Charminar")
	assert.Equal(t, task.LocationAddressText, loc.Kind())
	assert.Equal(t, "{not json near Charminar", loc.Address)

	nested := ParseLocation(map[string]any{"location": "opposite city library"})
	assert.Equal(t, "opposite city library", nested.Address)
}

func TestParseLocationLatLngText(t *testing.T) {
	loc := ParseLocation(" 17.4, 78.4 ")
	assert.Equal(t, task.LocationCoordinates, loc.Kind())

	out := ParseLocation("200, 78.4")
	assert.Equal(t, task.LocationAddressText, out.Kind())
}

func TestParseLocationEmpty(t *testing.T) {
	assert.True(t, ParseLocation(nil).Empty())
	assert.True(t, ParseLocation("   ").Empty())
	assert.True(t, ParseLocation(map[string]any{}).Empty())
}

func TestParseLocationStruct(t *testing.T) {
	loc := ParseLocation(struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}{Lat: 1.5, Lng: 2.5})
	assert.Equal(t, task.LocationCoordinates, loc.Kind())
}

func TestParseLocationCoordinateArray(t *testing.T) {
	loc := ParseLocation(map[string]any{"coords": []any{17.4, 78.4}, "address": "Begumpet"})
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 17.4, *loc.Lat)
	assert.Equal(t, 78.4, *loc.Lng)
	assert.Equal(t, task.LocationMixed, loc.Kind())

	fromJSON := ParseLocation(`{"coordinates":[17.4,78.4]}`)
	assert.Equal(t, task.LocationCoordinates, fromJSON.Kind())

	bare := ParseLocation("[17.4, 78.4]")
	assert.Equal(t, task.LocationCoordinates, bare.Kind())

	// массив не из двух чисел адресом не становится
	assert.False(t, ParseLocation(map[string]any{"coords": []any{17.4}}).HasCoordinates())
	assert.Equal(t, "[1,2,3]", ParseLocation("[1,2,3]").Address)
}

func TestParseLocationRejectsOutOfRangeCoordinates(t *testing.T) {
	loc := ParseLocation(map[string]any{"lat": 95.0, "lng": 78.4, "address": "Ameerpet"})
	assert.False(t, loc.HasCoordinates())
	assert.Equal(t, task.LocationAddressText, loc.Kind())

	arr := ParseLocation(map[string]any{"coords": []any{17.4, 181.0}})
	assert.True(t, arr.Empty())
}
