package qos

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/qspec"
)

func buildReserve(t *testing.T) *Message {
	t.Helper()
	m := NewMessage(MsgReserve)
	m.SetObject(uint16(ObjRSN), &RSN{Value: 1})
	m.SetObject(uint16(ObjSessionLifetime), &SessionLifetime{Seconds: 60})
	m.SetObject(uint16(ObjPacketClassifier), &PacketClassifier{
		SrcAddr: net.ParseIP("192.0.2.1"), DstAddr: net.ParseIP("192.0.2.2"),
		SrcPort: 1000, DstPort: 2000, Protocol: 17,
	})
	pdu := qspec.NewPDU(0, 12, true)
	pdu.SetObject(qspec.ObjectQoSDesired, qspec.NewObject(
		&qspec.TMOD{Rate: 1000, BucketDepth: 10, Peak: 2000, MinPolicedUnit: 1},
	))
	m.SetObject(uint16(ObjQSPEC), &QSPECObject{PDU: pdu})
	return m
}

func TestReserveRoundTrip(t *testing.T) {
	m := buildReserve(t)
	buf := netbuf.NewEmpty(128)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)

	rbuf := netbuf.New(buf.Bytes())
	got, err := Deserialize(rbuf, ie.DefaultCoding)
	require.NoError(t, err)
	require.Equal(t, MsgReserve, got.Type)

	qs, ok := got.Objects[uint16(ObjQSPEC)].(*QSPECObject)
	require.True(t, ok)
	tmod, ok := qs.PDU.Objects[qspec.ObjectQoSDesired].Parameters[0].(*qspec.TMOD)
	require.True(t, ok)
	require.Equal(t, float32(1000), tmod.Rate)
}

func TestRSNPrecedesWraparound(t *testing.T) {
	require.True(t, Precedes(0xFFFFFFFF, 0))
	require.False(t, Precedes(0, 0xFFFFFFFF))
	require.True(t, Precedes(5, 6))
	require.False(t, Precedes(6, 5))
}

func TestAggregateMinRateSumLatency(t *testing.T) {
	local := qspec.NewPDU(0, 12, true)
	local.SetObject(qspec.ObjectQoSAvailable, qspec.NewObject(
		&qspec.TMOD{Rate: 500, BucketDepth: 10, Peak: 500, MinPolicedUnit: 1},
		&qspec.PathLatency{Micros: 1000},
	))
	upstream := qspec.NewPDU(0, 12, true)
	upstream.SetObject(qspec.ObjectQoSAvailable, qspec.NewObject(
		&qspec.TMOD{Rate: 800, BucketDepth: 10, Peak: 800, MinPolicedUnit: 1},
		&qspec.PathLatency{Micros: 2000},
	))

	out, err := Aggregate(local, upstream)
	require.NoError(t, err)
	obj := out.Objects[qspec.ObjectQoSAvailable]
	var tmod *qspec.TMOD
	var lat *qspec.PathLatency
	for _, p := range obj.Parameters {
		switch v := p.(type) {
		case *qspec.TMOD:
			tmod = v
		case *qspec.PathLatency:
			lat = v
		}
	}
	require.Equal(t, float32(500), tmod.Rate)
	require.Equal(t, uint32(3000), lat.Micros)
}
