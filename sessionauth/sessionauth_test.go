package sessionauth

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp"
	"github.com/kit-nsis/gosis/nslp/qos"
	"github.com/kit-nsis/gosis/qspec"
)

type fakeKeys struct {
	key []byte
}

func (f fakeKeys) Lookup(keyID uint32) ([]byte, uint16, bool) {
	if keyID != 42 {
		return nil, 0, false
	}
	return f.key, HMACTransformDefault, true
}

// buildSignedMessage implements the setup half of scenario S4: a QoS
// RESERVE-shaped NSLP message carrying RII/RSN/PacketClassifier/QSPEC
// objects plus a session-auth object whose NslpObjectList covers all
// four, signed with an HMAC-SHA-1-96 key.
func buildSignedMessage(t *testing.T, macSize int) (*netbuf.NetBuf, int, int, *Object) {
	t.Helper()
	m := nslp.NewMessage(1, uint8(qos.MsgReserve))
	m.SetObject(uint16(qos.ObjRII), &qos.RII{Value: 7})
	m.SetObject(uint16(qos.ObjRSN), &qos.RSN{Value: 1})
	m.SetObject(uint16(qos.ObjPacketClassifier), &qos.PacketClassifier{
		SrcAddr: net.ParseIP("192.0.2.1"), DstAddr: net.ParseIP("192.0.2.9"),
		SrcPort: 1, DstPort: 2, Protocol: 17,
	})
	pdu := qspec.NewPDU(0, 12, true)
	pdu.SetObject(qspec.ObjectQoSDesired, qspec.NewObject(&qspec.TMOD{Rate: 10, BucketDepth: 10, Peak: 10, MinPolicedUnit: 1}))
	m.SetObject(uint16(qos.ObjQSPEC), &qos.QSPECObject{PDU: pdu})

	authObj := &Object{Attributes: []Attribute{
		NewHMACTransformID(HMACTransformDefault),
		&NslpObjectList{ObjectTypes: []uint16{uint16(qos.ObjRII), uint16(qos.ObjRSN), uint16(qos.ObjPacketClassifier), uint16(qos.ObjQSPEC)}},
		&AuthData{KeyID: 42, Data: make([]byte, macSize)},
	}}
	m.SetObject(ObjectType, authObj)

	buf := netbuf.NewEmpty(256)
	_, err := m.Serialize(buf, ie.DefaultCoding)
	require.NoError(t, err)

	require.NoError(t, buf.FillTLPList(nslp.PDUHeaderSize, buf.Len(), nslp.ReadObjectHeader))
	authOffsets := buf.Offsets(uint8(ie.CategoryObject), ObjectType)
	require.Len(t, authOffsets, 1)
	authOffset := authOffsets[0]
	info, err := nslp.ReadObjectHeader(buf, authOffset)
	require.NoError(t, err)
	return buf, authOffset, info.TotalLen, authObj
}

func TestHMACSignAndVerify(t *testing.T) {
	keys := fakeKeys{key: []byte("super-secret-key")}
	buf, authOffset, authTotalLen, authObj := buildSignedMessage(t, 12)

	var nslpID [2]byte
	err := Sign(buf, nslpID, uint16(qos.ObjRII) /* stand-in MRI type */, uint16(qos.ObjRSN), authObj, authOffset, authTotalLen, keys)
	require.NoError(t, err)

	require.NoError(t, Verify(buf, nslpID, uint16(qos.ObjRII), uint16(qos.ObjRSN), authObj, authOffset, authTotalLen, keys))
}

func TestHMACVerifyFailsOnTamper(t *testing.T) {
	keys := fakeKeys{key: []byte("super-secret-key")}
	buf, authOffset, authTotalLen, authObj := buildSignedMessage(t, 12)

	var nslpID [2]byte
	require.NoError(t, Sign(buf, nslpID, uint16(qos.ObjRII), uint16(qos.ObjRSN), authObj, authOffset, authTotalLen, keys))

	// Flip a byte inside the covered region, outside the MAC slot itself
	// (the first byte of the QSPEC object's TMOD parameter header).
	raw := buf.Bytes()
	raw[authOffset-20] ^= 0xFF

	require.Error(t, Verify(buf, nslpID, uint16(qos.ObjRII), uint16(qos.ObjRSN), authObj, authOffset, authTotalLen, keys))
}

func TestHMACUnknownKeyRejected(t *testing.T) {
	keys := fakeKeys{key: []byte("super-secret-key")}
	buf, authOffset, authTotalLen, authObj := buildSignedMessage(t, 12)
	authObj.authData().KeyID = 999

	var nslpID [2]byte
	err := Sign(buf, nslpID, uint16(qos.ObjRII), uint16(qos.ObjRSN), authObj, authOffset, authTotalLen, keys)
	require.Error(t, err)
	var target *ErrUnknownKey
	require.ErrorAs(t, err, &target)
}

func TestObjectValidationInvariants(t *testing.T) {
	o := &Object{Attributes: []Attribute{NewHMACTransformID(HMACTransformDefault)}}
	require.Error(t, o.Check())

	o.Attributes = append(o.Attributes, &NslpObjectList{})
	require.Error(t, o.Check())

	o.Attributes = append(o.Attributes, &AuthData{KeyID: 1, Data: make([]byte, 12)})
	require.NoError(t, o.Check())
}

func TestAttributesSortedByXTypeThenSubtype(t *testing.T) {
	o := &Object{Attributes: []Attribute{
		&AuthData{KeyID: 1, Data: make([]byte, 12)},
		NewHMACTransformID(HMACTransformDefault),
		&NslpObjectList{},
	}}
	sorted := o.sortedAttributes()
	require.Equal(t, XTypeAuthEntId, sorted[0].XType())
	require.Equal(t, XTypeNslpObjectList, sorted[1].XType())
	require.Equal(t, XTypeAuthData, sorted[2].XType())
}
