package natfw

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

func buildCreate(t *testing.T) *Message {
	t.Helper()
	m := NewMessage(MsgCreate)
	m.SetObject(uint16(ObjSessionLifetime), &SessionLifetime{Seconds: 300})
	m.SetObject(uint16(ObjExtendedFlowInfo), &ExtendedFlowInfo{
		SrcAddr: net.ParseIP("10.0.0.1"), DstAddr: net.ParseIP("203.0.113.5"),
		SrcPort: 5000, DstPort: 80, Protocol: 6,
	})
	m.SetObject(uint16(ObjMessageSequenceNumber), &MessageSequenceNumber{MSN: 1})
	return m
}

func TestCreateRoundTrip(t *testing.T) {
	m := buildCreate(t)
	buf := netbuf.NewEmpty(64)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)

	rbuf := netbuf.New(buf.Bytes())
	got, err := Deserialize(rbuf, ie.DefaultCoding)
	require.NoError(t, err)
	require.Equal(t, MsgCreate, got.Type)

	lifetime, ok := got.Objects[uint16(ObjSessionLifetime)].(*SessionLifetime)
	require.True(t, ok)
	require.Equal(t, uint32(300), lifetime.Seconds)

	flow, ok := got.Objects[uint16(ObjExtendedFlowInfo)].(*ExtendedFlowInfo)
	require.True(t, ok)
	require.True(t, flow.SrcAddr.Equal(net.ParseIP("10.0.0.1")))
	require.Equal(t, uint16(80), flow.DstPort)
}

func TestCreateMissingRequiredObjectRejected(t *testing.T) {
	m := NewMessage(MsgCreate)
	m.SetObject(uint16(ObjSessionLifetime), &SessionLifetime{Seconds: 300})
	buf := netbuf.NewEmpty(32)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.Error(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	m := NewMessage(MsgResponse)
	m.SetObject(uint16(ObjInformationCode), &InformationCode{Severity: SeveritySuccess, Code: 0})
	buf := netbuf.NewEmpty(32)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)

	rbuf := netbuf.New(buf.Bytes())
	got, err := Deserialize(rbuf, ie.DefaultCoding)
	require.NoError(t, err)
	code := got.Objects[uint16(ObjInformationCode)].(*InformationCode)
	require.True(t, code.IsSuccess())
}

func TestICMPTypesPermits(t *testing.T) {
	icmp := &ICMPTypes{}
	icmp.Mask |= 1 << 8 // echo-request
	require.True(t, icmp.Permits(8))
	require.False(t, icmp.Permits(3))
}
