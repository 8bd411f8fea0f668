package cmd

import (
	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/nslp/natfw"
	"github.com/kit-nsis/gosis/nslp/qos"
	"github.com/kit-nsis/gosis/session"
)

// roleResolver decides which (if any) of this node's configured roles
// an inbound message may open a session under, per spec.md §4.8's
// "CREATE at NR/NF; EXT at NF; RESERVE at QNE are openers; anything
// else is dropped and logged." A deployment plays at most one NATFW
// role and one QoS role at a time -- which edge/interior position a
// node occupies is a deployment-time decision (the config file or
// --natfw-role/--qos-role flags), not something inferred per-message.
type roleResolver struct {
	NATFWRole session.Role
	QoSRole   session.Role
}

// CanOpen implements dispatch.RoleResolver.
func (r *roleResolver) CanOpen(ev dispatch.Event) (session.Role, bool) {
	me, ok := ev.(*dispatch.MessageEvent)
	if !ok {
		return 0, false
	}
	switch m := me.ParsedMessage.(type) {
	case *natfw.Message:
		return r.canOpenNATFW(m)
	case *qos.Message:
		return r.canOpenQoS(m)
	default:
		return 0, false
	}
}

func (r *roleResolver) canOpenNATFW(m *natfw.Message) (session.Role, bool) {
	if r.NATFWRole == 0 {
		return 0, false
	}
	switch m.Type {
	case natfw.MsgCreate:
		if r.NATFWRole == session.RoleNATFWResponder || r.NATFWRole == session.RoleNATFWForwarder {
			return r.NATFWRole, true
		}
	case natfw.MsgExt:
		switch r.NATFWRole {
		case session.RoleNATFWForwarder, session.RoleNATFWExtEdge, session.RoleNATFWExtNonEdge:
			return r.NATFWRole, true
		}
	}
	return 0, false
}

func (r *roleResolver) canOpenQoS(m *qos.Message) (session.Role, bool) {
	if r.QoSRole == 0 {
		return 0, false
	}
	switch m.Type {
	case qos.MsgReserve, qos.MsgQuery:
		if r.QoSRole == session.RoleQoSForwarder || r.QoSRole == session.RoleQoSResponder {
			return r.QoSRole, true
		}
	}
	return 0, false
}
