package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/celerix-pond/internal/interaction"
)

func sample() interaction.Enumeration {
	return interaction.Enumeration{
		Records: []interaction.Record{
			{Sequence: 1, Kind: interaction.KindSimple, Timestamp: "t1", Action: "Reset", Level: "3"},
			{Sequence: 2, Kind: interaction.KindWorkspace, Timestamp: "t2", Action: "Run", Payload: `<xml><block type="pond_cannon"/></xml>`, Level: "3"},
		},
		Malformed: []interaction.MalformedRecord{{Sequence: 3, Raw: "x", Reason: "unexpected field count 1"}},
	}
}

func TestHTML_RendersRowsAndBanding(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, "", sample()))
	out := buf.String()

	assert.Contains(t, out, "<title>"+DefaultTitle+"</title>")
	assert.Contains(t, out, `<tr class="odd" data-sequence="1"><td>3</td><td>t1</td><td>Reset</td><td class="workspace">NULL</td></tr>`)
	assert.Contains(t, out, `<tr class="even" data-sequence="2">`)
	assert.Equal(t, 1, strings.Count(out, `class="odd"`))
	assert.Equal(t, 1, strings.Count(out, `class="even"`))
	assert.Contains(t, out, "#3: unexpected field count 1")
}

func TestHTML_EscapesWorkspace(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, "Class 7", sample()))
	out := buf.String()

	assert.Contains(t, out, "<title>Class 7</title>")
	assert.Contains(t, out, "&lt;xml&gt;&lt;block type=&#34;pond_cannon&#34;/&gt;&lt;/xml&gt;")
	assert.NotContains(t, out, "<block")
}

func TestHTML_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, "", interaction.Enumeration{}))
	assert.NotContains(t, buf.String(), "<tr class=")
	assert.NotContains(t, buf.String(), "Unreadable")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sample()))

	var got interaction.Enumeration
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Records, 2)
	assert.Equal(t, "Run", got.Records[1].Action)
	assert.Len(t, got.Malformed, 1)
	assert.NotContains(t, buf.String(), `\u003c`)
}
