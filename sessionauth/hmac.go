package sessionauth

import (
	"fmt"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
	"github.com/kit-nsis/gosis/nslp"
)

// KeyLookup resolves a key-id to key bytes, implemented by
// keyregistry.Registry.
type KeyLookup interface {
	Lookup(keyID uint32) (key []byte, algorithm uint16, ok bool)
}

// ErrUnknownKey is returned when a session-auth object names a key-id
// the registry doesn't have, per spec.md §7.
type ErrUnknownKey struct{ KeyID uint32 }

func (e *ErrUnknownKey) Error() string { return fmt.Sprintf("sessionauth: unknown key-id %d", e.KeyID) }

// coveredRange is one byte range of buf folded into the HMAC input.
type coveredRange struct {
	start, length int
}

// CoveredRanges implements spec.md §4.6's object-selection rule: the MRI
// and SessionID objects, the session-auth object itself (truncated to
// exclude its trailing MAC field), and every object named in the
// session-auth object's NslpObjectList attribute, deduplicated by
// starting offset and returned in increasing offset order.
//
// buf must already have a populated TLP list covering the message's
// object range (via FillTLPList with nslp.ReadObjectHeader), and
// authOffset/authTotalLen must be the session-auth object's own
// (header-inclusive) start offset and total wire length.
func CoveredRanges(buf *netbuf.NetBuf, mriType, sessionIDType uint16, authObj *Object, authOffset, authTotalLen, macSize int) ([]coveredRange, error) {
	offsets := map[int]int{} // start -> total length

	addByType := func(typ uint16) error {
		for _, off := range buf.Offsets(uint8(ie.CategoryObject), typ) {
			info, err := nslp.ReadObjectHeader(buf, off)
			if err != nil {
				return err
			}
			offsets[off] = info.TotalLen
		}
		return nil
	}
	if err := addByType(mriType); err != nil {
		return nil, err
	}
	if err := addByType(sessionIDType); err != nil {
		return nil, err
	}
	offsets[authOffset] = authTotalLen

	if list := authObj.nslpObjectList(); list != nil {
		for _, typ := range list.ObjectTypes {
			if typ == ObjectType || typ == mriType || typ == sessionIDType {
				continue
			}
			if err := addByType(typ); err != nil {
				return nil, err
			}
		}
	}

	starts := make([]int, 0, len(offsets))
	for s := range offsets {
		starts = append(starts, s)
	}
	sortInts(starts)

	ranges := make([]coveredRange, 0, len(starts))
	for _, s := range starts {
		length := offsets[s]
		if s == authOffset {
			length -= macSize
		}
		ranges = append(ranges, coveredRange{start: s, length: length})
	}
	return ranges, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// hmacInput builds the exact byte stream spec.md §4.6 specifies: the
// 2-byte NSLP-id, then every covered range concatenated in offset order.
func hmacInput(buf *netbuf.NetBuf, nslpID [2]byte, ranges []coveredRange) ([]byte, error) {
	out := make([]byte, 0, 2+len(ranges)*8)
	out = append(out, nslpID[0], nslpID[1])
	for _, r := range ranges {
		chunk, err := buf.Slice(r.start, r.length)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// Sign computes the HMAC over the covered ranges and writes it into the
// trailing macSize bytes of the session-auth object's AuthData body,
// located at authOffset+authTotalLen-macSize in buf. Must be called
// after the whole message has been laid out in buf and FillTLPList has
// run, per spec.md §4.6's serialisation flow.
func Sign(buf *netbuf.NetBuf, nslpID [2]byte, mriType, sessionIDType uint16, authObj *Object, authOffset, authTotalLen int, keys KeyLookup) error {
	auth := authObj.authData()
	if auth == nil {
		return fmt.Errorf("sessionauth: Sign requires an AuthData attribute")
	}
	key, algorithm, ok := keys.Lookup(auth.KeyID)
	if !ok {
		return &ErrUnknownKey{KeyID: auth.KeyID}
	}
	_, macSize, err := newHash(algorithm)
	if err != nil {
		return err
	}
	ranges, err := CoveredRanges(buf, mriType, sessionIDType, authObj, authOffset, authTotalLen, macSize)
	if err != nil {
		return err
	}
	input, err := hmacInput(buf, nslpID, ranges)
	if err != nil {
		return err
	}
	mac, err := computeHMAC(algorithm, key, input)
	if err != nil {
		return err
	}
	macOffset := authOffset + authTotalLen - macSize
	return overwriteSlice(buf, macOffset, mac)
}

// Verify recomputes the HMAC over the covered ranges and compares it
// byte-for-byte with the MAC slot's current contents.
func Verify(buf *netbuf.NetBuf, nslpID [2]byte, mriType, sessionIDType uint16, authObj *Object, authOffset, authTotalLen int, keys KeyLookup) error {
	auth := authObj.authData()
	if auth == nil {
		return fmt.Errorf("sessionauth: Verify requires an AuthData attribute")
	}
	key, algorithm, ok := keys.Lookup(auth.KeyID)
	if !ok {
		return &ErrUnknownKey{KeyID: auth.KeyID}
	}
	_, macSize, err := newHash(algorithm)
	if err != nil {
		return err
	}
	ranges, err := CoveredRanges(buf, mriType, sessionIDType, authObj, authOffset, authTotalLen, macSize)
	if err != nil {
		return err
	}
	input, err := hmacInput(buf, nslpID, ranges)
	if err != nil {
		return err
	}
	want, err := computeHMAC(algorithm, key, input)
	if err != nil {
		return err
	}
	macOffset := authOffset + authTotalLen - macSize
	got, err := buf.Slice(macOffset, macSize)
	if err != nil {
		return err
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("sessionauth: HMAC verification failed")
		}
	}
	return nil
}

// overwriteSlice copies src into buf starting at off, through
// NetBuf.Slice, which returns a subslice aliasing the buffer's storage,
// so the copy lands in place -- safe because the MAC slot was already reserved at its
// final size during serialization.
func overwriteSlice(buf *netbuf.NetBuf, off int, src []byte) error {
	dst, err := buf.Slice(off, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}
