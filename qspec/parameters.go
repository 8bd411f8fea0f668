package qspec

import (
	"fmt"
	"math"

	"github.com/kit-nsis/gosis/internal/ie"
	"github.com/kit-nsis/gosis/internal/netbuf"
)

func newParameter(id ParamID, disp ParamDisposition) (Parameter, error) {
	switch id {
	case ParamTMOD:
		return &TMOD{disp: disp}, nil
	case ParamPathLatency:
		return &PathLatency{disp: disp}, nil
	case ParamPathJitter:
		return &PathJitter{disp: disp}, nil
	case ParamPathPLR:
		return &PathPLR{disp: disp}, nil
	case ParamPathPER:
		return &PathPER{disp: disp}, nil
	case ParamSlackTerm:
		return &SlackTerm{disp: disp}, nil
	case ParamPreemptionPriority:
		return &PreemptionPriority{disp: disp}, nil
	case ParamDefendingPriority:
		return &DefendingPriority{disp: disp}, nil
	case ParamAdmissionPriority:
		return &AdmissionPriority{disp: disp}, nil
	case ParamExcessTreatment:
		return &ExcessTreatment{disp: disp}, nil
	case ParamRPHPriority:
		return &RPHPriority{disp: disp}, nil
	case ParamPHBClass:
		return &PHBClass{disp: disp}, nil
	case ParamDSTEClassType:
		return &DSTEClassType{disp: disp}, nil
	case ParamY1541QoSClass:
		return &Y1541QoSClass{disp: disp}, nil
	default:
		return nil, fmt.Errorf("qspec: unknown parameter id %d", id)
	}
}

// checkRate validates a rate field per spec.md §4.3: non-negative finite,
// except that a peak rate may additionally be +Inf.
func checkRate(v float32, allowInf bool) error {
	f := float64(v)
	if math.IsNaN(f) {
		return fmt.Errorf("qspec: rate is NaN")
	}
	if math.IsInf(f, -1) {
		return fmt.Errorf("qspec: rate is -Inf")
	}
	if math.IsInf(f, 1) {
		if !allowInf {
			return fmt.Errorf("qspec: rate is +Inf, not permitted here")
		}
		return nil
	}
	if v < 0 {
		return fmt.Errorf("qspec: rate %v is negative", v)
	}
	return nil
}

// TMOD is the token-bucket traffic model: rate, bucket depth and peak rate
// as non-negative finite f32 (peak may additionally be +Inf), plus a
// minimum policed unit in bytes as u32. Exactly 16 body bytes per
// spec.md §3.
type TMOD struct {
	disp           ParamDisposition
	Rate           float32
	BucketDepth    float32
	Peak           float32
	MinPolicedUnit uint32
}

// ParamID implements Parameter.
func (t *TMOD) ParamID() ParamID { return ParamTMOD }

// Disposition implements Parameter.
func (t *TMOD) Disposition() ParamDisposition { return t.disp }

// Check implements Parameter.
func (t *TMOD) Check() error {
	if err := checkRate(t.Rate, false); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if err := checkRate(t.BucketDepth, false); err != nil {
		return fmt.Errorf("bucket depth: %w", err)
	}
	if err := checkRate(t.Peak, true); err != nil {
		return fmt.Errorf("peak rate: %w", err)
	}
	return nil
}

// SerializedSize implements Parameter.
func (t *TMOD) SerializedSize(ie.CodingVersion) int { return 16 }

func (t *TMOD) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteFloat32(t.Rate)
	buf.WriteFloat32(t.BucketDepth)
	buf.WriteFloat32(t.Peak)
	buf.WriteUint32(t.MinPolicedUnit)
	return nil
}

func (t *TMOD) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 16 {
		return fmt.Errorf("qspec: TMOD body length %d, want 16", bodyLen)
	}
	var err error
	if t.Rate, err = buf.ReadFloat32(); err != nil {
		return err
	}
	if t.BucketDepth, err = buf.ReadFloat32(); err != nil {
		return err
	}
	if t.Peak, err = buf.ReadFloat32(); err != nil {
		return err
	}
	if t.MinPolicedUnit, err = buf.ReadUint32(); err != nil {
		return err
	}
	return nil
}

// PathLatency is the cumulative propagation delay along the path, in
// microseconds.
type PathLatency struct {
	disp   ParamDisposition
	Micros uint32
}

// ParamID implements Parameter.
func (*PathLatency) ParamID() ParamID { return ParamPathLatency }

// Disposition implements Parameter.
func (p *PathLatency) Disposition() ParamDisposition { return p.disp }

// Check implements Parameter.
func (p *PathLatency) Check() error { return nil }

// SerializedSize implements Parameter.
func (p *PathLatency) SerializedSize(ie.CodingVersion) int { return 4 }

func (p *PathLatency) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint32(p.Micros)
	return nil
}

func (p *PathLatency) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: path-latency body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	p.Micros = v
	return nil
}

// PathJitter carries the path's delay-variation distribution as four u32
// microsecond moments, per spec.md §3: minimum, maximum, mean and
// variation, following the variation-range convention RFC 5975's QSPEC
// uses for jitter reporting.
type PathJitter struct {
	disp                      ParamDisposition
	Min, Max, Mean, Variation uint32
}

// ParamID implements Parameter.
func (*PathJitter) ParamID() ParamID { return ParamPathJitter }

// Disposition implements Parameter.
func (p *PathJitter) Disposition() ParamDisposition { return p.disp }

// Check implements Parameter.
func (p *PathJitter) Check() error { return nil }

// SerializedSize implements Parameter.
func (p *PathJitter) SerializedSize(ie.CodingVersion) int { return 16 }

func (p *PathJitter) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint32(p.Min)
	buf.WriteUint32(p.Max)
	buf.WriteUint32(p.Mean)
	buf.WriteUint32(p.Variation)
	return nil
}

func (p *PathJitter) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 16 {
		return fmt.Errorf("qspec: path-jitter body length %d, want 16", bodyLen)
	}
	var err error
	if p.Min, err = buf.ReadUint32(); err != nil {
		return err
	}
	if p.Max, err = buf.ReadUint32(); err != nil {
		return err
	}
	if p.Mean, err = buf.ReadUint32(); err != nil {
		return err
	}
	if p.Variation, err = buf.ReadUint32(); err != nil {
		return err
	}
	return nil
}

// ratioParam is the shared shape for path-PLR and path-PER: a single
// non-negative finite f32 ratio.
type ratioParam struct {
	disp  ParamDisposition
	Ratio float32
}

func (p *ratioParam) Disposition() ParamDisposition       { return p.disp }
func (p *ratioParam) Check() error                        { return checkRate(p.Ratio, false) }
func (p *ratioParam) SerializedSize(ie.CodingVersion) int { return 4 }
func (p *ratioParam) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteFloat32(p.Ratio)
	return nil
}
func (p *ratioParam) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadFloat32()
	if err != nil {
		return err
	}
	p.Ratio = v
	return nil
}

// PathPLR is the path packet-loss ratio.
type PathPLR struct{ ratioParam }

// ParamID implements Parameter.
func (*PathPLR) ParamID() ParamID { return ParamPathPLR }

// PathPER is the path packet-error ratio.
type PathPER struct{ ratioParam }

// ParamID implements Parameter.
func (*PathPER) ParamID() ParamID { return ParamPathPER }

// SlackTerm is the reservation's permitted slack, a u32 duration in
// microseconds per spec.md §3's general duration-encoding rule.
type SlackTerm struct {
	disp   ParamDisposition
	Micros uint32
}

// ParamID implements Parameter.
func (*SlackTerm) ParamID() ParamID { return ParamSlackTerm }

// Disposition implements Parameter.
func (s *SlackTerm) Disposition() ParamDisposition { return s.disp }

// Check implements Parameter.
func (s *SlackTerm) Check() error { return nil }

// SerializedSize implements Parameter.
func (s *SlackTerm) SerializedSize(ie.CodingVersion) int { return 4 }

func (s *SlackTerm) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint32(s.Micros)
	return nil
}

func (s *SlackTerm) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: slack-term body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadUint32()
	if err != nil {
		return err
	}
	s.Micros = v
	return nil
}

// priorityParam is the shared shape for the two byte-sized priority
// parameters (preemption and defending priority): a single unsigned byte,
// 0 meaning "not used", per spec.md §3.
type priorityParam struct {
	disp     ParamDisposition
	Priority uint8
}

func (p *priorityParam) Disposition() ParamDisposition       { return p.disp }
func (p *priorityParam) Check() error                        { return nil }
func (p *priorityParam) SerializedSize(ie.CodingVersion) int { return 4 }
func (p *priorityParam) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint8(p.Priority)
	buf.WriteUint8(0)
	buf.WriteUint16(0)
	return nil
}
func (p *priorityParam) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	if _, err := buf.ReadBytes(3); err != nil {
		return err
	}
	p.Priority = v
	return nil
}

// PreemptionPriority is the priority at which this reservation may
// preempt a lower-priority one.
type PreemptionPriority struct{ priorityParam }

// ParamID implements Parameter.
func (*PreemptionPriority) ParamID() ParamID { return ParamPreemptionPriority }

// DefendingPriority is the priority at which this reservation defends
// against preemption.
type DefendingPriority struct{ priorityParam }

// ParamID implements Parameter.
func (*DefendingPriority) ParamID() ParamID { return ParamDefendingPriority }

// AdmissionPriority carries both an 8-bit Y.2171 admission-priority value
// and an 8-bit local value, coupled per spec.md §3: if Y2171 is 0xFF the
// local value is authoritative and unconstrained; otherwise the two must
// be equal.
type AdmissionPriority struct {
	disp  ParamDisposition
	Y2171 uint8
	Local uint8
}

// ParamID implements Parameter.
func (*AdmissionPriority) ParamID() ParamID { return ParamAdmissionPriority }

// Disposition implements Parameter.
func (a *AdmissionPriority) Disposition() ParamDisposition { return a.disp }

// Check implements Parameter.
func (a *AdmissionPriority) Check() error {
	if a.Y2171 != 0xFF && a.Y2171 != a.Local {
		return fmt.Errorf("qspec: admission priority Y.2171=%d local=%d must match unless Y.2171=0xFF", a.Y2171, a.Local)
	}
	return nil
}

// SerializedSize implements Parameter.
func (a *AdmissionPriority) SerializedSize(ie.CodingVersion) int { return 4 }

func (a *AdmissionPriority) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint8(a.Y2171)
	buf.WriteUint8(a.Local)
	buf.WriteUint16(0)
	return nil
}

func (a *AdmissionPriority) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	var err error
	if a.Y2171, err = buf.ReadUint8(); err != nil {
		return err
	}
	if a.Local, err = buf.ReadUint8(); err != nil {
		return err
	}
	if _, err := buf.ReadBytes(2); err != nil {
		return err
	}
	return nil
}

// ExcessTreatmentKind enumerates how traffic in excess of the reservation
// is handled.
type ExcessTreatmentKind uint8

// Excess-treatment kinds, per spec.md §3.
const (
	ExcessDrop ExcessTreatmentKind = iota
	ExcessShape
	ExcessRemark
	ExcessNoMetering
)

// ExcessTreatment describes how excess traffic is handled: drop, shape,
// remark to a DSCP, or no metering at all.
type ExcessTreatment struct {
	disp      ParamDisposition
	Treatment ExcessTreatmentKind
	DSCP      uint8 // 6 bits, meaningful only when Treatment == ExcessRemark
}

// ParamID implements Parameter.
func (*ExcessTreatment) ParamID() ParamID { return ParamExcessTreatment }

// Disposition implements Parameter.
func (e *ExcessTreatment) Disposition() ParamDisposition { return e.disp }

// Check implements Parameter.
func (e *ExcessTreatment) Check() error {
	if e.Treatment > ExcessNoMetering {
		return fmt.Errorf("qspec: unknown excess treatment %d", e.Treatment)
	}
	if e.DSCP > 0x3f {
		return fmt.Errorf("qspec: DSCP %d exceeds 6-bit range", e.DSCP)
	}
	return nil
}

// SerializedSize implements Parameter.
func (e *ExcessTreatment) SerializedSize(ie.CodingVersion) int { return 4 }

func (e *ExcessTreatment) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint8(uint8(e.Treatment)&0x3<<6 | e.DSCP&0x3f)
	buf.WriteUint8(0)
	buf.WriteUint16(0)
	return nil
}

func (e *ExcessTreatment) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	if _, err := buf.ReadBytes(3); err != nil {
		return err
	}
	e.Treatment = ExcessTreatmentKind(v >> 6 & 0x3)
	e.DSCP = v & 0x3f
	return nil
}

// RPHPriority carries a Resource-Priority Header namespace and priority
// level pair, for NSIS sessions coupled to RFC 4412 signalling. Its
// internal layout is not detailed further by the data model beyond its
// name, so this follows RFC 4412's (namespace, priority) shape.
type RPHPriority struct {
	disp      ParamDisposition
	Namespace uint8
	Priority  uint8
}

// ParamID implements Parameter.
func (*RPHPriority) ParamID() ParamID { return ParamRPHPriority }

// Disposition implements Parameter.
func (r *RPHPriority) Disposition() ParamDisposition { return r.disp }

// Check implements Parameter.
func (r *RPHPriority) Check() error { return nil }

// SerializedSize implements Parameter.
func (r *RPHPriority) SerializedSize(ie.CodingVersion) int { return 4 }

func (r *RPHPriority) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint8(r.Namespace)
	buf.WriteUint8(r.Priority)
	buf.WriteUint16(0)
	return nil
}

func (r *RPHPriority) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	var err error
	if r.Namespace, err = buf.ReadUint8(); err != nil {
		return err
	}
	if r.Priority, err = buf.ReadUint8(); err != nil {
		return err
	}
	if _, err := buf.ReadBytes(2); err != nil {
		return err
	}
	return nil
}

// PHBKind distinguishes whether PHBClass.Value names a DSCP or a PHB-ID.
type PHBKind uint8

// PHB value kinds.
const (
	PHBKindDSCP PHBKind = iota
	PHBKindID
)

// PHBClass packs either a 6-bit DSCP or a 12-bit PHB-ID into the top 14
// bits of a 16-bit field, with the bottom two bits distinguishing
// single-value vs. set and DSCP vs. PHB-ID, per spec.md §4.3:
// 00 = single DSCP, 10 = DSCP set, 01 = single PHB-ID, 11 = PHB-ID set.
type PHBClass struct {
	disp  ParamDisposition
	Kind  PHBKind
	IsSet bool
	Value uint16 // 14 bits
}

// ParamID implements Parameter.
func (*PHBClass) ParamID() ParamID { return ParamPHBClass }

// Disposition implements Parameter.
func (p *PHBClass) Disposition() ParamDisposition { return p.disp }

// Check implements Parameter.
func (p *PHBClass) Check() error {
	if p.Value > 0x3fff {
		return fmt.Errorf("qspec: PHB value %d exceeds 14-bit range", p.Value)
	}
	if p.Kind == PHBKindDSCP && p.Value > 0x3f {
		return fmt.Errorf("qspec: PHB DSCP %d exceeds 6-bit range", p.Value)
	}
	if p.Kind == PHBKindID && p.Value > 0xfff {
		return fmt.Errorf("qspec: PHB-ID %d exceeds 12-bit range", p.Value)
	}
	return nil
}

func (p *PHBClass) discriminator() uint16 {
	var d uint16
	if p.Kind == PHBKindID {
		d |= 0x1
	}
	if p.IsSet {
		d |= 0x2
	}
	return d
}

// SerializedSize implements Parameter.
func (p *PHBClass) SerializedSize(ie.CodingVersion) int { return 4 }

func (p *PHBClass) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	field := (p.Value&0x3fff)<<2 | p.discriminator()
	buf.WriteUint16(field)
	buf.WriteUint16(0)
	return nil
}

func (p *PHBClass) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	field, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	if _, err := buf.ReadBytes(2); err != nil {
		return err
	}
	disc := field & 0x3
	p.Kind = PHBKind(disc & 0x1)
	p.IsSet = disc&0x2 != 0
	p.Value = field >> 2
	return nil
}

// DSTEClassType is a Diffserv-aware MPLS-TE class type, 0 through 7.
type DSTEClassType struct {
	disp      ParamDisposition
	ClassType uint8
}

// ParamID implements Parameter.
func (*DSTEClassType) ParamID() ParamID { return ParamDSTEClassType }

// Disposition implements Parameter.
func (d *DSTEClassType) Disposition() ParamDisposition { return d.disp }

// Check implements Parameter.
func (d *DSTEClassType) Check() error {
	if d.ClassType > 7 {
		return fmt.Errorf("qspec: DSTE class type %d exceeds range 0-7", d.ClassType)
	}
	return nil
}

// SerializedSize implements Parameter.
func (d *DSTEClassType) SerializedSize(ie.CodingVersion) int { return 4 }

func (d *DSTEClassType) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint8(d.ClassType & 0x7)
	buf.WriteUint8(0)
	buf.WriteUint16(0)
	return nil
}

func (d *DSTEClassType) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	if _, err := buf.ReadBytes(3); err != nil {
		return err
	}
	d.ClassType = v & 0x7
	return nil
}

// Y1541QoSClass is an ITU-T Y.1541 end-to-end QoS class, 0 through 5.
type Y1541QoSClass struct {
	disp  ParamDisposition
	Class uint8
}

// ParamID implements Parameter.
func (*Y1541QoSClass) ParamID() ParamID { return ParamY1541QoSClass }

// Disposition implements Parameter.
func (y *Y1541QoSClass) Disposition() ParamDisposition { return y.disp }

// Check implements Parameter.
func (y *Y1541QoSClass) Check() error {
	if y.Class > 5 {
		return fmt.Errorf("qspec: Y.1541 QoS class %d exceeds range 0-5", y.Class)
	}
	return nil
}

// SerializedSize implements Parameter.
func (y *Y1541QoSClass) SerializedSize(ie.CodingVersion) int { return 4 }

func (y *Y1541QoSClass) serializeBody(buf *netbuf.NetBuf, _ ie.CodingVersion) error {
	buf.WriteUint8(y.Class)
	buf.WriteUint8(0)
	buf.WriteUint16(0)
	return nil
}

func (y *Y1541QoSClass) deserializeBody(buf *netbuf.NetBuf, bodyLen int, _ ie.CodingVersion) error {
	if bodyLen != 4 {
		return fmt.Errorf("qspec: body length %d, want 4", bodyLen)
	}
	v, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	if _, err := buf.ReadBytes(3); err != nil {
		return err
	}
	y.Class = v
	return nil
}
