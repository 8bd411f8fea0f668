package collab

import (
	log "github.com/sirupsen/logrus"

	"github.com/kit-nsis/gosis/dispatch"
	"github.com/kit-nsis/gosis/session"
)

// LoggingTransport is the in-memory reference implementation of
// dispatch.Transport: it logs every send rather than putting bytes on
// the wire. GIST/NTLP transport is an externalized collaborator (spec.md
// §1); a deployment plugs in a real one, this one exists so cmd/nsisd
// has something to run against out of the box, mirroring the way
// MemoryRuleInstaller/MemoryNatBroker stand in for their own
// externalized collaborators.
type LoggingTransport struct{}

// NewLoggingTransport builds a LoggingTransport.
func NewLoggingTransport() *LoggingTransport { return &LoggingTransport{} }

// Send logs the outbound send and returns nil, never actually
// delivering sdu anywhere.
func (t *LoggingTransport) Send(sid session.ID, mri, sdu []byte, attrs dispatch.TransportAttrs) error {
	log.WithField("session", sid).Debugf("collab: transport would send %d bytes (mri=%x, reliable=%v, secure=%v)",
		len(sdu), mri, attrs.Reliable, attrs.Secure)
	return nil
}
