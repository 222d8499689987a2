package netio

import (
	"golang.org/x/net/bpf"
)

// -------------------------------------------------------------------------
// BPDU Socket Filter
// -------------------------------------------------------------------------

// bpduSnapLen is the number of bytes the filter keeps of an accepted frame.
const bpduSnapLen = frameBufSize

// BPDUFilter returns a classic BPF program accepting 802.3 frames sent to
// the bridge group address 01:80:C2:00:00:00 with DSAP and SSAP 0x42.
// Everything else is dropped in the kernel.
func BPDUFilter() []bpf.Instruction {
	return []bpf.Instruction{
		// Destination MAC, first four octets.
		bpf.LoadAbsolute{Off: 0, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x0180c200, SkipTrue: 7},
		// Destination MAC, last two octets.
		bpf.LoadAbsolute{Off: 4, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0x0000, SkipTrue: 5},
		// 802.3 length, not an EtherType.
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpGreaterThan, Val: maxLLCLength, SkipTrue: 3},
		// DSAP and SSAP.
		bpf.LoadAbsolute{Off: 14, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: llcSAPBPDU<<8 | llcSAPBPDU, SkipTrue: 1},
		bpf.RetConstant{Val: bpduSnapLen},
		bpf.RetConstant{Val: 0},
	}
}
