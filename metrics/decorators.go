package metrics

import (
	"github.com/kit-nsis/gosis/dispatch"
)

// CountingRuleInstaller wraps a dispatch.RuleInstaller, keeping
// Registry.RulesInstalled in step with every successful Install/
// Remove/RemoveAll, the way cmd/nsisd wires the reference
// collaborators to the exporter without dispatch itself depending on
// this package.
type CountingRuleInstaller struct {
	dispatch.RuleInstaller
	Metrics *Registry
}

// Install delegates then increments RulesInstalled on success.
func (c *CountingRuleInstaller) Install(rule dispatch.Rule) (string, error) {
	handle, err := c.RuleInstaller.Install(rule)
	if err == nil {
		c.Metrics.RulesInstalled.Inc()
	}
	return handle, err
}

// Remove delegates then decrements RulesInstalled on success.
func (c *CountingRuleInstaller) Remove(handle string) error {
	err := c.RuleInstaller.Remove(handle)
	if err == nil {
		c.Metrics.RulesInstalled.Dec()
	}
	return err
}

// RemoveAll delegates then resets RulesInstalled to zero on success.
func (c *CountingRuleInstaller) RemoveAll() error {
	err := c.RuleInstaller.RemoveAll()
	if err == nil {
		c.Metrics.RulesInstalled.Set(0)
	}
	return err
}

// CountingNatBroker wraps a dispatch.NatBroker, keeping
// Registry.NATReservationsHeld in step with every successful
// ReserveExternal/ReleaseExternal.
type CountingNatBroker struct {
	dispatch.NatBroker
	Metrics *Registry
}

// ReserveExternal delegates then increments NATReservationsHeld on success.
func (c *CountingNatBroker) ReserveExternal(privateAddr string) (string, error) {
	pub, err := c.NatBroker.ReserveExternal(privateAddr)
	if err == nil {
		c.Metrics.NATReservationsHeld.Inc()
	}
	return pub, err
}

// ReleaseExternal delegates then decrements NATReservationsHeld on success.
func (c *CountingNatBroker) ReleaseExternal(publicAddr string) error {
	err := c.NatBroker.ReleaseExternal(publicAddr)
	if err == nil {
		c.Metrics.NATReservationsHeld.Dec()
	}
	return err
}
