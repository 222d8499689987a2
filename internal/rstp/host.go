package rstp

import "net"

// Host is the set of capabilities a Bridge needs from the system it runs
// on. Ports are identified by their port number. Implementations must not
// call back into the Bridge.
type Host interface {
	// TxFrame transmits a fully framed BPDU on the port.
	TxFrame(port uint16, frame []byte) error

	// Flush removes dynamic filtering database entries on behalf of the
	// port, scoped to the port itself or to every other port.
	Flush(port uint16, scope FlushScope) error

	// PortAddress returns the MAC address used as the BPDU source.
	PortAddress(port uint16) net.HardwareAddr

	// LinkUp reports the current link status of the port.
	LinkUp(port uint16) bool

	// FullDuplex reports whether the port's link runs full duplex.
	FullDuplex(port uint16) bool

	// Speed returns the operating speed in Mb/s, 0 when unknown.
	Speed(port uint16) uint32

	// SetLearning enables or disables address learning on the port.
	SetLearning(port uint16, enable bool) error

	// SetForwarding enables or disables frame forwarding on the port.
	SetForwarding(port uint16, enable bool) error

	// SetHardwareMode switches the datapath between protocol-controlled
	// port states (enable) and plain forwarding on every port.
	SetHardwareMode(enable bool) error
}
