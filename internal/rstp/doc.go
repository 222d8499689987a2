// Package rstp implements the Rapid Spanning Tree Protocol engine
// (IEEE 802.1D-2004 clause 17).
//
// This includes the priority vector algebra (17.6), the per-port and
// per-bridge state machines (17.23-17.31), the BPDU codec (clause 9) and
// the Ethernet/LLC framing the machines depend on. A Bridge is a single
// spanning-tree instance; it performs no I/O of its own and reaches the
// outside world only through the Host interface.
package rstp
