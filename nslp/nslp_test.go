package nslp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

func TestObjectHeaderRoundTrip(t *testing.T) {
	h := ObjectHeader{Action: ActionRefresh, Type: 0xABC, LengthWords: 3}
	buf := netbuf.NewEmpty(4)
	h.Marshal(buf)
	require.Equal(t, 4, buf.Len())

	rbuf := netbuf.New(buf.Bytes())
	got, err := UnmarshalObjectHeader(rbuf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestPDUHeaderRoundTrip(t *testing.T) {
	h := PDUHeader{Version: 1, MsgType: 0x42, HopCount: 16, Flags: 0x5, LengthWords: 12}
	buf := netbuf.NewEmpty(4)
	h.Marshal(buf)

	rbuf := netbuf.New(buf.Bytes())
	got, err := UnmarshalPDUHeader(rbuf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

type testObject struct {
	typ  uint16
	data uint32
}

func (o *testObject) Category() ie.Category               { return ie.CategoryObject }
func (o *testObject) Type() uint16                        { return o.typ }
func (o *testObject) Subtype() uint8                      { return 0 }
func (o *testObject) NewInstance() ie.IE                  { return &testObject{typ: o.typ} }
func (o *testObject) DeepCopy() ie.IE                     { return &testObject{typ: o.typ, data: o.data} }
func (o *testObject) Check() error                        { return nil }
func (o *testObject) SerializedSize(ie.CodingVersion) int { return 4 }
func (o *testObject) Serialize(buf *netbuf.NetBuf, _ ie.CodingVersion) (int, error) {
	buf.WriteUint32(o.data)
	return 4, nil
}
func (o *testObject) Deserialize(buf *netbuf.NetBuf, _ ie.CodingVersion, _ *ie.ErrorList, _ bool) (int, error) {
	v, err := buf.ReadUint32()
	if err != nil {
		return 0, err
	}
	o.data = v
	return 4, nil
}
func (o *testObject) Equal(other ie.IE) bool {
	t2, ok := other.(*testObject)
	return ok && t2.typ == o.typ && t2.data == o.data
}
func (o *testObject) String() string { return "testObject" }

func TestMessageRoundTripKnownAndUnknown(t *testing.T) {
	m := NewMessage(1, 5)
	m.SetObject(10, &testObject{typ: 10, data: 0xCAFEBABE})

	buf := netbuf.NewEmpty(32)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)
	require.Zero(t, buf.Len()%4)

	decode := func(typ uint16) (ie.IE, bool) {
		if typ == 10 {
			return &testObject{typ: 10}, true
		}
		return nil, false
	}

	rbuf := netbuf.New(buf.Bytes())
	got, err := DeserializeMessage(rbuf, ie.DefaultCoding, decode)
	require.NoError(t, err)
	require.Equal(t, uint8(5), got.Header.MsgType)
	obj, ok := got.Objects[10].(*testObject)
	require.True(t, ok)
	require.Equal(t, uint32(0xCAFEBABE), obj.data)
}

func TestMessageMandatoryUnknownObjectFails(t *testing.T) {
	buf := netbuf.NewEmpty(16)
	m := NewMessage(1, 1)
	m.SetObject(999, &testObject{typ: 999})
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)

	rbuf := netbuf.New(buf.Bytes())
	_, err = DeserializeMessage(rbuf, ie.DefaultCoding, func(uint16) (ie.IE, bool) { return nil, false })
	require.Error(t, err)
	var target *ErrMandatoryUnknownObject
	require.ErrorAs(t, err, &target)
}

func TestMessageForwardsUnknownNonMandatoryObject(t *testing.T) {
	raw := &RawObject{Header: ObjectHeader{Action: ActionForward, Type: 77}, Body: []byte{1, 2, 3, 4}}
	m := NewMessage(1, 1)
	m.SetObject(77, raw)

	buf := netbuf.NewEmpty(16)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)

	rbuf := netbuf.New(buf.Bytes())
	got, err := DeserializeMessage(rbuf, ie.DefaultCoding, func(uint16) (ie.IE, bool) { return nil, false })
	require.NoError(t, err)
	fwd, ok := got.Objects[77].(*RawObject)
	require.True(t, ok)
	require.Equal(t, raw.Body, fwd.Body)
	require.Equal(t, ActionForward, fwd.Header.Action)
}

func TestRequireObjectsMissing(t *testing.T) {
	m := NewMessage(1, 1)
	m.SetObject(1, &testObject{typ: 1})
	require.NoError(t, m.RequireObjects(1))
	require.Error(t, m.RequireObjects(1, 2))
}
