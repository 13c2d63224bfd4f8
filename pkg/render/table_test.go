package render_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgeix/peerbot/pkg/directory"
	"github.com/edgeix/peerbot/pkg/render"
)

func TestTable(t *testing.T) {
	result := directory.Result{
		Kind: directory.ResultFound,
		ASN:  64500,
		Name: "ExampleNet",
		Rows: []directory.PeeringRow{
			{Location: "SYD", RouteServer: "rs1", State: "Established"},
			{Location: "MEL", RouteServer: "rs1", State: "Idle"},
		},
	}

	tbl, caption := render.Table(result)

	assert.Equal(t, "ExampleNet", caption)
	for _, want := range []string{"City", "Route Server", "BGP State", "SYD", "MEL", "rs1", "Established", "Idle"} {
		assert.Contains(t, tbl, want)
	}

	// One header row plus one row per (location, route server).
	sydLine := 0
	for _, line := range strings.Split(tbl, "\n") {
		if strings.Contains(line, "SYD") {
			sydLine++
		}
	}
	assert.Equal(t, 1, sydLine)
}
