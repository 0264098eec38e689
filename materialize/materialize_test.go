package materialize_test

import (
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matgreaves/gantry/loader"
	"github.com/matgreaves/gantry/materialize"
	"github.com/matgreaves/gantry/spec"
)

func loadBridge(t *testing.T) *spec.Topology {
	t.Helper()
	topo, err := loader.Load(
		"../testdata/bridge/docker-compose.yml",
		"../testdata/bridge/docker-compose.bridge.yml",
	)
	require.NoError(t, err)
	return topo
}

// With no host overrides, the exchange generator resolves its documented
// defaults and exposes host port 9916 mapped to container port 9616.
func TestBridgeDefaults(t *testing.T) {
	topo := loadBridge(t)

	res, err := materialize.Materialize(topo, materialize.MapLookup(nil))
	require.NoError(t, err)

	gen := res.Topology.Services["poa-exchange-tx-generator"]
	assert.Equal(t, "1", gen.Environment["EXCHANGE_GEN_MIN_AMOUNT_FINNEY"])
	assert.Equal(t, "100000", gen.Environment["EXCHANGE_GEN_MAX_AMOUNT_FINNEY"])
	assert.Equal(t, "60", gen.Environment["EXCHANGE_GEN_MAX_SUBMIT_DELAY_S"])

	require.Len(t, res.Ports["poa-exchange-tx-generator"], 1)
	pm := res.Ports["poa-exchange-tx-generator"][0]
	assert.Equal(t, 9916, pm.HostPort)
	assert.Equal(t, 9616, pm.ContainerPort)

	fe := res.Topology.Services["front-end"]
	require.NotNil(t, fe.Build)
	assert.Equal(t, "ws://localhost:9944", fe.Build.Args["SUBSTRATE_PROVIDER"])
	assert.Equal(t, "http://localhost:8545", fe.Build.Args["ETHEREUM_PROVIDER"])
	assert.Equal(t, "105", fe.Build.Args["EXPECTED_ETHEREUM_NETWORK_ID"])
}

// Host-provided values win over the literal defaults.
func TestBridgeHostOverrides(t *testing.T) {
	topo := loadBridge(t)

	res, err := materialize.Materialize(topo, materialize.MapLookup(map[string]string{
		"EXCHANGE_GEN_MIN_AMOUNT_FINNEY": "5",
		"UI_SUBSTRATE_PROVIDER":          "wss://wss.rialto.brucke.link",
	}))
	require.NoError(t, err)

	gen := res.Topology.Services["poa-exchange-tx-generator"]
	assert.Equal(t, "5", gen.Environment["EXCHANGE_GEN_MIN_AMOUNT_FINNEY"])
	assert.Equal(t, "100000", gen.Environment["EXCHANGE_GEN_MAX_AMOUNT_FINNEY"])

	fe := res.Topology.Services["front-end"]
	assert.Equal(t, "wss://wss.rialto.brucke.link", fe.Build.Args["SUBSTRATE_PROVIDER"])
}

// An empty host value falls back to the default under ":-".
func TestBridgeEmptyHostValue(t *testing.T) {
	topo := loadBridge(t)

	res, err := materialize.Materialize(topo, materialize.MapLookup(map[string]string{
		"EXCHANGE_GEN_MAX_SUBMIT_DELAY_S": "",
	}))
	require.NoError(t, err)

	gen := res.Topology.Services["poa-exchange-tx-generator"]
	assert.Equal(t, "60", gen.Environment["EXCHANGE_GEN_MAX_SUBMIT_DELAY_S"])
}

func TestBridgeHostPortsAreUnique(t *testing.T) {
	topo := loadBridge(t)

	res, err := materialize.Materialize(topo, materialize.OSLookup)
	require.NoError(t, err)

	seen := map[int]string{}
	for name, ports := range res.Ports {
		for _, pm := range ports {
			if pm.HostPort == 0 {
				continue
			}
			if other, dup := seen[pm.HostPort]; dup {
				t.Errorf("host port %d bound by both %s and %s", pm.HostPort, other, name)
			}
			seen[pm.HostPort] = name
		}
	}
	// The relay and generator metrics ports from the override.
	for _, port := range []int{9616, 9716, 9816, 9916, 8080} {
		assert.Contains(t, seen, port, "expected host port %d to be exposed", port)
	}
}

func TestPortConflictDetected(t *testing.T) {
	topo := &spec.Topology{Services: map[string]spec.Service{
		"relay-a": {Image: "relay", Ports: []string{"9616:9616"}},
		"relay-b": {Image: "relay", Ports: []string{"9616:9716"}},
	}}

	_, err := materialize.Materialize(topo, materialize.MapLookup(nil))
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, materialize.PortConflictError), "got %v", err)
	assert.Contains(t, err.Error(), `"relay-a"`)
	assert.Contains(t, err.Error(), `"relay-b"`)
}

func TestPortConflictRespectsHostIP(t *testing.T) {
	// Same port on distinct concrete interfaces is fine; a wildcard bind
	// collides with everything.
	ok := &spec.Topology{Services: map[string]spec.Service{
		"a": {Image: "x", Ports: []string{"127.0.0.1:9944:9944"}},
		"b": {Image: "x", Ports: []string{"192.168.0.1:9944:9944"}},
	}}
	_, err := materialize.Materialize(ok, materialize.MapLookup(nil))
	assert.NoError(t, err)

	clash := &spec.Topology{Services: map[string]spec.Service{
		"a": {Image: "x", Ports: []string{"127.0.0.1:9944:9944"}},
		"b": {Image: "x", Ports: []string{"9944:9944"}},
	}}
	_, err = materialize.Materialize(clash, materialize.MapLookup(nil))
	assert.True(t, errorx.IsOfType(err, materialize.PortConflictError), "got %v", err)
}

func TestConflictOnlyAfterInterpolation(t *testing.T) {
	// Only the resolved values matter for conflict detection.
	topo := &spec.Topology{Services: map[string]spec.Service{
		"a": {Image: "x", Ports: []string{"${PORT_A:-9000}:80"}},
		"b": {Image: "x", Ports: []string{"${PORT_B:-9001}:80"}},
	}}

	_, err := materialize.Materialize(topo, materialize.MapLookup(nil))
	assert.NoError(t, err)

	_, err = materialize.Materialize(topo, materialize.MapLookup(map[string]string{
		"PORT_B": "9000",
	}))
	assert.True(t, errorx.IsOfType(err, materialize.PortConflictError), "got %v", err)
}

func TestMaterializeDoesNotMutateInput(t *testing.T) {
	topo := &spec.Topology{Services: map[string]spec.Service{
		"a": {Image: "x", Environment: spec.Environment{"K": "${K:-default}"}},
	}}

	_, err := materialize.Materialize(topo, materialize.MapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "${K:-default}", topo.Services["a"].Environment["K"],
		"input topology must stay uninterpolated")
}

func TestUdpAndTcpDoNotConflict(t *testing.T) {
	topo := &spec.Topology{Services: map[string]spec.Service{
		"dns": {Image: "x", Ports: []string{"53:53/udp", "53:53/tcp"}},
	}}

	_, err := materialize.Materialize(topo, materialize.MapLookup(nil))
	assert.NoError(t, err)
}
