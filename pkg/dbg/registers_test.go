package dbg

import "testing"

func TestReadWriteRegisterValueARM64(t *testing.T) {
	regs := Registers{Arch: ArchARM64}
	regs.X[3] = 0x11
	regs.SP = 0x2000
	regs.PC = 0x4000

	cases := []struct {
		name string
		want uint64
	}{
		{"x3", 0x11},
		{"sp", 0x2000},
		{"pc", 0x4000},
	}
	for _, c := range cases {
		got, err := ReadRegisterValue(&regs, c.name)
		if err != nil {
			t.Fatalf("ReadRegisterValue(%q): %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("ReadRegisterValue(%q) = %#x, want %#x", c.name, got, c.want)
		}
	}

	if err := WriteRegisterValue(&regs, "x3", 0x99); err != nil {
		t.Fatalf("WriteRegisterValue: %v", err)
	}
	if regs.X[3] != 0x99 {
		t.Errorf("x3 = %#x, want 0x99", regs.X[3])
	}

	if _, err := ReadRegisterValue(&regs, "rax"); err == nil {
		t.Error("expected error reading x86_64 register name on an ARM64 register file")
	}
}

func TestReadWriteRegisterValueAMD64(t *testing.T) {
	regs := Registers{Arch: ArchX86_64}
	if err := WriteRegisterValue(&regs, "rip", 0xdead); err != nil {
		t.Fatalf("WriteRegisterValue: %v", err)
	}
	got, err := ReadRegisterValue(&regs, "rip")
	if err != nil {
		t.Fatalf("ReadRegisterValue: %v", err)
	}
	if got != 0xdead {
		t.Errorf("rip = %#x, want 0xdead", got)
	}

	if _, err := ReadRegisterValue(&regs, "not_a_register"); err == nil {
		t.Error("expected error for unknown register name")
	}
}

func TestRegistersPCValue(t *testing.T) {
	arm := Registers{Arch: ArchARM64, PC: 0x1234}
	if arm.PCValue() != 0x1234 {
		t.Errorf("ARM64 PCValue = %#x, want 0x1234", arm.PCValue())
	}
	amd := Registers{Arch: ArchX86_64, Rip: 0x5678}
	if amd.PCValue() != 0x5678 {
		t.Errorf("x86_64 PCValue = %#x, want 0x5678", amd.PCValue())
	}
	amd.SetPCValue(0x9999)
	if amd.Rip != 0x9999 {
		t.Errorf("SetPCValue did not update Rip: got %#x", amd.Rip)
	}
}
