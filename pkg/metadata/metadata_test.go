package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKindsSurviveRoundTrip(t *testing.T) {
	m := Map{
		"plan":    String("roaming-eu"),
		"retries": Number(3),
		"active":  Bool(true),
		"cells":   List(String("310-260"), Number(42)),
		"nested": Object(map[string]Value{
			"imsi": String("310260123456789"),
		}),
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded Map
	require.NoError(t, json.Unmarshal(data, &decoded))

	plan, ok := decoded["plan"].StringValue()
	assert.True(t, ok)
	assert.Equal(t, "roaming-eu", plan)

	retries, ok := decoded["retries"].NumberValue()
	assert.True(t, ok)
	assert.Equal(t, float64(3), retries)

	active, ok := decoded["active"].BoolValue()
	assert.True(t, ok)
	assert.True(t, active)

	cells, ok := decoded["cells"].ListValue()
	assert.True(t, ok)
	require.Len(t, cells, 2)
	assert.Equal(t, KindString, cells[0].Kind())
	assert.Equal(t, KindNumber, cells[1].Kind())

	nested, ok := decoded["nested"].ObjectValue()
	assert.True(t, ok)
	assert.Equal(t, KindString, nested["imsi"].Kind())
}

func TestValueDistinguishesLookalikes(t *testing.T) {
	var numeric Value
	require.NoError(t, json.Unmarshal([]byte(`42`), &numeric))
	assert.Equal(t, KindNumber, numeric.Kind())

	var text Value
	require.NoError(t, json.Unmarshal([]byte(`"42"`), &text))
	assert.Equal(t, KindString, text.Kind())

	var truthy Value
	require.NoError(t, json.Unmarshal([]byte(`true`), &truthy))
	assert.Equal(t, KindBool, truthy.Kind())

	var stringyBool Value
	require.NoError(t, json.Unmarshal([]byte(`"true"`), &stringyBool))
	assert.Equal(t, KindString, stringyBool.Kind())
}

func TestMapScanRoundTrip(t *testing.T) {
	m := Map{"source": String("mediation-a")}

	stored, err := m.Value()
	require.NoError(t, err)

	var loaded Map
	require.NoError(t, loaded.Scan(stored))

	source, ok := loaded["source"].StringValue()
	assert.True(t, ok)
	assert.Equal(t, "mediation-a", source)
}

func TestNilMapStoresAsNull(t *testing.T) {
	var m Map
	stored, err := m.Value()
	require.NoError(t, err)
	assert.Nil(t, stored)

	var loaded Map
	require.NoError(t, loaded.Scan(nil))
	assert.Nil(t, loaded)
}
