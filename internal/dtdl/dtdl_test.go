package dtdl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thermostatModel = `{
  "@id": "dtmi:contosocom:DigitalTwins:Thermostat;1",
  "@type": "Interface",
  "@context": "dtmi:dtdl:context;2",
  "displayName": "Thermostat",
  "extends": "dtmi:contosocom:DigitalTwins:Space;1",
  "contents": [
    { "@type": "Property", "name": "FirmwareVersion", "schema": "string" },
    { "@type": ["Telemetry", "Temperature"], "name": "Temperature", "schema": "double" }
  ]
}`

func TestParse_SingleDocument(t *testing.T) {
	// --- Act ---
	ifaces, err := Parse([]byte(thermostatModel))

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	assert.Equal(t, "dtmi:contosocom:DigitalTwins:Thermostat;1", ifaces[0].ID)
	assert.Equal(t, "Thermostat", ifaces[0].DisplayName)
	assert.Equal(t, []string{"dtmi:contosocom:DigitalTwins:Space;1"}, ifaces[0].Extends)
	assert.Empty(t, ifaces[0].Components)
	assert.False(t, ifaces[0].Inline)
	assert.JSONEq(t, thermostatModel, string(ifaces[0].Raw))
}

func TestParse_ArrayWithComponentsAndInlineInterfaces(t *testing.T) {
	// --- Arrange ---
	input := `[
	  {
	    "@id": "dtmi:com:example:Room;1",
	    "@type": "Interface",
	    "displayName": {"de": "Raum", "en": "Room"},
	    "extends": ["dtmi:com:example:Space;1", {
	      "@id": "dtmi:com:example:Tagged;1",
	      "@type": "Interface"
	    }],
	    "contents": [
	      { "@type": "Component", "name": "thermostat", "schema": "dtmi:com:example:Thermostat;1" },
	      { "@type": ["Component"], "name": "sensor", "schema": {
	          "@id": "dtmi:com:example:Sensor;1",
	          "@type": "Interface",
	          "extends": "dtmi:com:example:Device;1"
	      }},
	      { "@type": "Relationship", "name": "contains", "target": "dtmi:com:example:Space;1" }
	    ]
	  },
	  { "@id": "dtmi:com:example:Space;1", "@type": "Interface" }
	]`

	// --- Act ---
	ifaces, err := Parse([]byte(input))

	// --- Assert ---
	require.NoError(t, err)
	var got []string
	for _, i := range ifaces {
		got = append(got, i.ID)
	}
	assert.Equal(t, []string{
		"dtmi:com:example:Room;1",
		"dtmi:com:example:Tagged;1",
		"dtmi:com:example:Sensor;1",
		"dtmi:com:example:Space;1",
	}, got)

	room := ifaces[0]
	assert.Equal(t, "Room", room.DisplayName)
	assert.Equal(t, []string{"dtmi:com:example:Space;1", "dtmi:com:example:Tagged;1"}, room.Extends)
	assert.Equal(t, []string{"dtmi:com:example:Thermostat;1", "dtmi:com:example:Sensor;1"}, room.Components)

	assert.True(t, ifaces[1].Inline)
	assert.True(t, ifaces[2].Inline)
	assert.Equal(t, []string{"dtmi:com:example:Device;1"}, ifaces[2].Extends)
	assert.False(t, ifaces[3].Inline)
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		index    int
		property string
		contains string
	}{
		{name: "empty", input: "  ", contains: "empty input"},
		{name: "invalid json", input: `{"@id":`, contains: "invalid JSON"},
		{name: "missing id", input: `{"@type":"Interface"}`, property: "@id", contains: "missing"},
		{name: "bad dtmi", input: `{"@id":"urn:x","@type":"Interface"}`, property: "@id", contains: "not a valid DTMI"},
		{name: "not an interface", input: `{"@id":"dtmi:a:b;1","@type":"Property"}`, property: "@type", contains: "must be 'Interface'"},
		{
			name:     "duplicate in second document",
			input:    `[{"@id":"dtmi:a:b;1","@type":"Interface"},{"@id":"dtmi:a:b;1","@type":"Interface"}]`,
			index:    1,
			property: "@id",
			contains: "duplicate model id",
		},
		{name: "bad extends", input: `{"@id":"dtmi:a:b;1","@type":"Interface","extends":42}`, property: "extends", contains: "must be a DTMI"},
		{name: "component without schema", input: `{"@id":"dtmi:a:b;1","@type":"Interface","contents":[{"@type":"Component","name":"c"}]}`, property: "schema", contains: "without schema"},
		{name: "inline without id", input: `{"@id":"dtmi:a:b;1","@type":"Interface","extends":{"@type":"Interface"}}`, property: "@id", contains: "inline interface requires"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.input))

			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.index, perr.Index)
			assert.Equal(t, tc.property, perr.Property)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestValidDTMI(t *testing.T) {
	valid := []string{
		"dtmi:contosocom:DigitalTwins:Space;1",
		"dtmi:com:example:Thermostat;12.3",
		"dtmi:com:example:Versionless",
	}
	invalid := []string{
		"",
		"dtmi:",
		"dtmi:com:example:Thermostat;0",
		"dtmi:1com:example;1",
		"dtmi:com:example_;1",
		"urn:com:example;1",
	}
	for _, id := range valid {
		assert.True(t, ValidDTMI(id), id)
	}
	for _, id := range invalid {
		assert.False(t, ValidDTMI(id), id)
	}
}

func TestDocuments(t *testing.T) {
	docs, err := Documents([]byte(` [ {"a":1}, {"b":2} ] `))
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = Documents([]byte(thermostatModel))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}
