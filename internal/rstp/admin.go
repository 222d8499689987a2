package rstp

import (
	"fmt"
	"log/slog"
)

// -------------------------------------------------------------------------
// Bridge Management: 802.1D-2004 Section 14.8.1
// -------------------------------------------------------------------------

// SetBridgePriority changes the priority component of the bridge
// identifier. Every port reselects; ports holding this bridge's old
// information update it through Role Selection.
func (b *Bridge) SetBridgePriority(priority uint16) error {
	if priority%bridgePriorityStep != 0 {
		return fmt.Errorf("bridge %q priority %d: %w", b.cfg.Name, priority, ErrInvalidBridgePriority)
	}
	if priority == b.cfg.Priority {
		return nil
	}
	b.cfg.Priority = priority
	b.id = b.id.WithPriority(priority)
	b.logger.Info("bridge priority changed", slog.String("bridge_id", b.id.String()))
	b.adminChanged()
	return nil
}

// SetBridgeTimes changes MaxAge, HelloTime and ForwardDelay together, so
// the 17.14 relationship is checked against the final values.
func (b *Bridge) SetBridgeTimes(maxAge, helloTime, forwardDelay uint16) error {
	t := Times{MaxAge: maxAge, HelloTime: helloTime, ForwardDelay: forwardDelay}
	if err := ValidateTimes(t); err != nil {
		return fmt.Errorf("bridge %q: %w", b.cfg.Name, err)
	}
	if t == b.cfg.Times() {
		return nil
	}
	b.cfg.MaxAge = maxAge
	b.cfg.HelloTime = helloTime
	b.cfg.ForwardDelay = forwardDelay
	b.logger.Info("bridge times changed",
		slog.Int("max_age", int(maxAge)),
		slog.Int("hello_time", int(helloTime)),
		slog.Int("forward_delay", int(forwardDelay)),
	)
	b.adminChanged()
	return nil
}

// SetForceVersion changes the protocol version the bridge speaks. The
// whole bridge is reinitialized through BEGIN (17.13.4).
func (b *Bridge) SetForceVersion(v ForceVersion) error {
	if v != ForceSTP && v != ForceRSTP {
		return fmt.Errorf("bridge %q: %w", b.cfg.Name, ErrInvalidForceVersion)
	}
	if v == b.cfg.ForceVersion {
		return nil
	}
	b.cfg.ForceVersion = v
	b.logger.Info("force version changed", slog.String("force_version", v.String()))
	if b.running {
		b.begin()
	}
	return nil
}

// SetTxHoldCount changes the transmit rate limit and clears txCount on
// every port (17.13.12).
func (b *Bridge) SetTxHoldCount(n uint16) error {
	if n < minTxHoldCount || n > maxTxHoldCount {
		return fmt.Errorf("bridge %q tx hold count %d: %w", b.cfg.Name, n, ErrInvalidTxHoldCount)
	}
	b.cfg.TxHoldCount = n
	for _, p := range b.ports {
		p.txCount = 0
	}
	if b.running {
		b.settle()
	}
	return nil
}

// SetFlushScope changes which entries a topology change flushes.
func (b *Bridge) SetFlushScope(s FlushScope) error {
	if s != FlushThisPort && s != FlushOtherPorts {
		return fmt.Errorf("bridge %q: %w", b.cfg.Name, ErrInvalidFlushScope)
	}
	b.cfg.FlushScope = s
	return nil
}

// adminChanged makes every port reselect after a bridge parameter change.
func (b *Bridge) adminChanged() {
	b.reselectAll()
	if b.running {
		b.settle()
	}
}

// -------------------------------------------------------------------------
// Port Management: 802.1D-2004 Section 14.8.2
// -------------------------------------------------------------------------

// SetPortPriority changes the priority component of the port identifier.
func (b *Bridge) SetPortPriority(number uint16, priority uint8) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	if priority%portPriorityStep != 0 || priority > 240 {
		return fmt.Errorf("port %d priority %d: %w", number, priority, ErrInvalidPortPriority)
	}
	if priority == p.cfg.Priority {
		return nil
	}
	p.cfg.Priority = priority
	p.id = NewPortID(priority, number)
	// Held vectors name the receiving port; keep them matching p.id so
	// rootPortID still resolves to this port.
	p.portPriority.BridgePortID = p.id
	p.msgPriority.BridgePortID = p.id
	p.logger.Info("port priority changed", slog.String("port_id", p.id.String()))
	b.adminChanged()
	return nil
}

// SetAdminEdge changes adminEdgePort (17.13.1). The port restarts Bridge
// Detection so the new value takes effect immediately.
func (b *Bridge) SetAdminEdge(number uint16, edge bool) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	if p.cfg.AdminEdge == edge {
		return nil
	}
	p.cfg.AdminEdge = edge
	p.detect.reset()
	if b.running {
		b.settle()
	}
	return nil
}

// SetAutoEdge changes autoEdgePort (17.13.3).
func (b *Bridge) SetAutoEdge(number uint16, auto bool) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	p.cfg.AutoEdge = auto
	if b.running {
		b.settle()
	}
	return nil
}

// SetAdminPointToPoint changes adminPointToPointMAC (6.4.3) and
// recomputes operPointToPointMAC.
func (b *Bridge) SetAdminPointToPoint(number uint16, v PointToPoint) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	if v > PointToPointForceFalse {
		return fmt.Errorf("port %d: %w", number, ErrInvalidPointToPoint)
	}
	p.cfg.PointToPoint = v
	if p.updatePointToPoint(b.host.FullDuplex(number)) && b.running {
		b.settle()
	}
	return nil
}

// SetAdminNonStp takes the port out of, or back into, the protocol. A
// non-STP port always learns and forwards and ignores BPDUs.
func (b *Bridge) SetAdminNonStp(number uint16, nonStp bool) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	if p.cfg.NonStp == nonStp {
		return nil
	}
	p.cfg.NonStp = nonStp
	p.logger.Info("port non-stp changed", slog.Bool("non_stp", nonStp))
	if !nonStp {
		p.roletr.reset()
	}
	b.adminChanged()
	return nil
}

// MCheck forces the port to transmit RST BPDUs again, to test whether
// every legacy bridge has left the segment (17.19.13). It has no effect
// while the bridge is forced to STP.
func (b *Bridge) MCheck(number uint16) error {
	p, err := b.port(number)
	if err != nil {
		return err
	}
	if !b.rstpVersion() {
		return nil
	}
	p.mcheck = true
	p.logger.Info("protocol migration check requested")
	if b.running {
		b.settle()
	}
	return nil
}
