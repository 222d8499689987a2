package rstp

// Hooks into Bridge internals for the rstp_test package.

// TickTransitions ticks and returns the number of transitions taken.
func (b *Bridge) TickTransitions() int { return b.tick() }

// Settle runs the machines to a fixpoint.
func (b *Bridge) Settle() int { return b.settle() }

// RootPriority returns the current root priority vector.
func (b *Bridge) RootPriority() PriorityVector { return b.rootPriority }

func (b *Bridge) mustPort(number uint16) *Port {
	p, err := b.port(number)
	if err != nil {
		panic(err)
	}
	return p
}

// SetNewInfo raises newInfo on a port.
func (b *Bridge) SetNewInfo(number uint16) { b.mustPort(number).newInfo = true }

// SetTxCount overrides a port's txCount.
func (b *Bridge) SetTxCount(number, n uint16) { b.mustPort(number).txCount = n }

// HelloWhen returns a port's helloWhen timer.
func (b *Bridge) HelloWhen(number uint16) uint16 { return b.mustPort(number).helloWhen }

// TcProp returns a port's tcProp flag.
func (b *Bridge) TcProp(number uint16) bool { return b.mustPort(number).tcProp }

// SetTcProp overrides a port's tcProp flag.
func (b *Bridge) SetTcProp(number uint16, v bool) { b.mustPort(number).tcProp = v }

// EnterTopologyDetected runs the DETECTED entry actions on a port.
func (b *Bridge) EnterTopologyDetected(number uint16) {
	b.mustPort(number).topoch.enter(tcDetected)
}

// Selected returns a port's selected flag.
func (b *Bridge) Selected(number uint16) bool { return b.mustPort(number).selected }

// SetReselect overrides a port's reselect and selected flags.
func (b *Bridge) SetReselect(number uint16, reselect, selected bool) {
	p := b.mustPort(number)
	p.reselect = reselect
	p.selected = selected
}

// SetSelectedTree runs setSelectedTree.
func (b *Bridge) SetSelectedTree() { b.setSelectedTree() }

// DetectState returns the Bridge Detection state name of a port.
func (b *Bridge) DetectState(number uint16) string { return b.mustPort(number).detect.state.String() }

// TopologyChangeState returns the Topology Change state name of a port.
func (b *Bridge) TopologyChangeState(number uint16) string {
	return b.mustPort(number).topoch.state.String()
}

// ClassifyBPDU runs rcvInfo on bpdu as if it had arrived on a port and
// returns the verdict. The port's msg variables are restored afterwards.
func (b *Bridge) ClassifyBPDU(number uint16, bpdu BPDU) string {
	p := b.mustPort(number)
	version, typ, flags := p.msgVersion, p.msgType, p.msgFlags
	priority, times, rcvd := p.msgPriority, p.msgTimes, p.rcvdBPDU
	defer func() {
		p.msgVersion, p.msgType, p.msgFlags = version, typ, flags
		p.msgPriority, p.msgTimes, p.rcvdBPDU = priority, times, rcvd
	}()

	p.stage(&bpdu)
	return p.rcvInfo().String()
}
