package probez

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

//go:generate go run go.uber.org/mock/mockgen -destination mock_callbacks_test.go -package probez -write_package_comment=false github.com/zoobzio/probez Callbacks

const testDataSource = "dev.probez.test_data_source"

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

func newTestProducer(t *testing.T, opts ...Option) *Producer {
	t.Helper()
	p := NewProducer(opts...)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func registerFuncs(t *testing.T, p *Producer, name string, h *HandlerFuncs) *DataSource {
	t.Helper()
	ds, err := p.Register(name, h, Params{})
	require.NoError(t, err)
	return ds
}

func startSession(t *testing.T, p *Producer, sources ...DataSourceConfig) *Session {
	t.Helper()
	s, err := p.StartSession(SessionConfig{DataSources: sources})
	require.NoError(t, err)
	return s
}

func stopAndRead(t *testing.T, s *Session) [][]byte {
	t.Helper()
	require.NoError(t, s.StopBlocking())
	return tracePackets(t, s.ReadBlocking())
}

// tracePackets splits a serialized Trace into its packets.
func tracePackets(t *testing.T, trace []byte) [][]byte {
	t.Helper()
	fields, err := pbz.Decode(trace)
	require.NoError(t, err)
	out := make([][]byte, 0, len(fields))
	for _, f := range fields {
		require.Equal(t, protos.TracePacket, f.Number)
		out = append(out, f.Bytes)
	}
	return out
}

// packetsWith keeps the packets that carry field num.
func packetsWith(packets [][]byte, num protowire.Number) [][]byte {
	var out [][]byte
	for _, p := range packets {
		if _, ok := pbz.Find(p, num); ok {
			out = append(out, p)
		}
	}
	return out
}

func mustField(t *testing.T, msg []byte, num protowire.Number) pbz.Field {
	t.Helper()
	f, ok := pbz.Find(msg, num)
	require.Truef(t, ok, "field %d not found", num)
	return f
}

// writeTestEvent writes a for_testing packet whose payload string is s.
func writeTestEvent(tc *TraceContext, s string) {
	pkt := tc.NewPacket()
	pkt.AppendVarint(protos.TracePacketTimestamp, tc.Timestamp())
	pkt.BeginNested(protos.TracePacketForTesting)
	pkt.BeginNested(protos.TestEventPayload)
	pkt.AppendString(protos.TestPayloadStr, s)
	pkt.EndNested()
	pkt.EndNested()
	pkt.End()
}

// testPayloads returns the payload strings of the for_testing packets.
func testPayloads(t *testing.T, packets [][]byte) []string {
	t.Helper()
	var out []string
	for _, p := range packetsWith(packets, protos.TracePacketForTesting) {
		ev := mustField(t, p, protos.TracePacketForTesting)
		payload := mustField(t, ev.Bytes, protos.TestEventPayload)
		out = append(out, mustField(t, payload.Bytes, protos.TestPayloadStr).String())
	}
	return out
}
