package dbg

import (
	"bytes"
	"testing"

	"github.com/nullpointer-dev/dbgcore/pkg/dbg/proto"
)

func TestUnpatchTrapsInBufferOverlaysOriginalBytes(t *testing.T) {
	d, _ := newTestDebugger(t, proto.ArchX86_64)
	d.swbp[0x1002] = &SWBreakpointSlot{ID: 1, Addr: 0x1002, InUse: true, Original: []byte{0x90}}

	buf := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	if err := d.unpatchTrapsInBuffer(0x1000, buf); err != nil {
		t.Fatalf("unpatchTrapsInBuffer: %v", err)
	}
	want := []byte{0xaa, 0xbb, 0x90, 0xdd, 0xee}
	if !bytes.Equal(buf, want) {
		t.Fatalf("buf = % x, want % x", buf, want)
	}
}

func TestUnpatchTrapsInBufferIgnoresBreakpointOutsideRange(t *testing.T) {
	d, _ := newTestDebugger(t, proto.ArchX86_64)
	d.swbp[0x5000] = &SWBreakpointSlot{ID: 1, Addr: 0x5000, InUse: true, Original: []byte{0x90}}

	buf := []byte{0xaa, 0xbb, 0xcc}
	orig := append([]byte(nil), buf...)
	if err := d.unpatchTrapsInBuffer(0x1000, buf); err != nil {
		t.Fatalf("unpatchTrapsInBuffer: %v", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("buffer should be untouched, got % x", buf)
	}
}

func TestUnpatchTrapsInBufferSkipsRemovedBreakpoints(t *testing.T) {
	d, _ := newTestDebugger(t, proto.ArchX86_64)
	d.swbp[0x1001] = &SWBreakpointSlot{ID: 1, Addr: 0x1001, InUse: false, Original: []byte{0x90}}

	buf := []byte{0xaa, 0xbb, 0xcc}
	orig := append([]byte(nil), buf...)
	if err := d.unpatchTrapsInBuffer(0x1000, buf); err != nil {
		t.Fatalf("unpatchTrapsInBuffer: %v", err)
	}
	if !bytes.Equal(buf, orig) {
		t.Fatalf("an InUse=false slot must not be overlaid, got % x", buf)
	}
}
