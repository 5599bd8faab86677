package insn

import "testing"

func TestDecodeTable(t *testing.T) {
	tests := []struct {
		name    string
		code    []byte
		mode    Mode
		wantLen int
		wantMn  string
		wantErr bool
	}{
		{
			name:    "mov eax,ebx",
			code:    []byte{0x89, 0xD8},
			mode:    Mode32,
			wantLen: 2,
			wantMn:  "mov",
		},
		{
			name:    "rex.w mov rax,rbx",
			code:    []byte{0x48, 0x89, 0xD8},
			mode:    Mode64,
			wantLen: 3,
			wantMn:  "mov",
		},
		{
			name:    "mov [ebx+0x10],eax",
			code:    []byte{0x89, 0x43, 0x10},
			mode:    Mode32,
			wantLen: 3,
			wantMn:  "mov",
		},
		{
			name:    "jmp rel8",
			code:    []byte{0xEB, 0x05},
			mode:    Mode32,
			wantLen: 2,
			wantMn:  "jmp",
		},
		{
			name:    "jcc rel32 (0F 8x)",
			code:    []byte{0x0F, 0x84, 0x10, 0x00, 0x00, 0x00},
			mode:    Mode32,
			wantLen: 6,
			wantMn:  "jcc",
		},
		{
			name:    "call rel32",
			code:    []byte{0xE8, 0x00, 0x00, 0x00, 0x00},
			mode:    Mode32,
			wantLen: 5,
			wantMn:  "call",
		},
		{
			name:    "lock add [eax],ebx",
			code:    []byte{0xF0, 0x01, 0x18},
			mode:    Mode32,
			wantLen: 3,
			wantMn:  "add",
		},
		{
			name:    "movsb",
			code:    []byte{0xA4},
			mode:    Mode32,
			wantLen: 1,
			wantMn:  "movsb",
		},
		{
			name:    "truncated opcode",
			code:    []byte{},
			mode:    Mode32,
			wantErr: true,
		},
		{
			name:    "unrecognized opcode",
			code:    []byte{0x0F, 0xFF},
			mode:    Mode32,
			wantErr: true,
		},
		{
			name:    "truncated immediate",
			code:    []byte{0xE8, 0x01, 0x02},
			mode:    Mode32,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(tt.code, 0x1000, tt.mode)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode() = %+v, want error", in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if in.Len != tt.wantLen {
				t.Errorf("Len = %d, want %d", in.Len, tt.wantLen)
			}
			if in.Mnemonic != tt.wantMn {
				t.Errorf("Mnemonic = %q, want %q", in.Mnemonic, tt.wantMn)
			}
		})
	}
}

func TestDecodeRIPRelative(t *testing.T) {
	// mov eax, [rip+0x20]: 8B 05 20 00 00 00
	code := []byte{0x8B, 0x05, 0x20, 0x00, 0x00, 0x00}
	in, err := Decode(code, 0x2000, Mode64)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !in.IsRIPRelative {
		t.Fatal("IsRIPRelative = false, want true")
	}
	want := uint64(0x2000 + 6 + 0x20)
	if in.RIPTarget != want {
		t.Errorf("RIPTarget = 0x%x, want 0x%x", in.RIPTarget, want)
	}
}

func TestDecodeRIPRelativeNotIn32BitMode(t *testing.T) {
	// Same bytes, but in 32-bit mode Mod==0/RM==5 is a bare disp32, no base.
	code := []byte{0x8B, 0x05, 0x20, 0x00, 0x00, 0x00}
	in, err := Decode(code, 0x2000, Mode32)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.IsRIPRelative {
		t.Fatal("IsRIPRelative = true, want false in 32-bit mode")
	}
}

func TestDecodeIndirectJumpTableDispatch(t *testing.T) {
	// jmp [0x1000 + eax*4]: FF 24 85 00 10 00 00
	code := []byte{0xFF, 0x24, 0x85, 0x00, 0x10, 0x00, 0x00}
	in, err := Decode(code, 0x3000, Mode32)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !in.IsIndirectJumpTableDispatch() {
		t.Fatal("IsIndirectJumpTableDispatch() = false, want true")
	}
	if got, want := in.JumpTableDisp(), int32(0x1000); got != want {
		t.Errorf("JumpTableDisp() = 0x%x, want 0x%x", got, want)
	}
}

func TestDecodeJumpTarget(t *testing.T) {
	code := []byte{0xE9, 0x10, 0x00, 0x00, 0x00} // jmp rel32 +0x10
	in, err := Decode(code, 0x4000, Mode32)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := uint64(0x4000 + 5 + 0x10)
	if in.JumpTarget != want {
		t.Errorf("JumpTarget = 0x%x, want 0x%x", in.JumpTarget, want)
	}
}

func TestDecodeLockedXchg(t *testing.T) {
	// xchg [eax], ebx, no explicit LOCK prefix: implicitly locked per Intel SDM.
	code := []byte{0x87, 0x18}
	in, err := Decode(code, 0x1000, Mode32)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !in.IsLocked {
		t.Fatal("IsLocked = false, want true for memory-operand xchg")
	}
}

func TestDecodeBarrierMFence(t *testing.T) {
	// mfence: 0F AE F0 (ModRM.Mod==3, reg==6)
	code := []byte{0x0F, 0xAE, 0xF0}
	in, err := Decode(code, 0x1000, Mode64)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Barrier != BarrierFull {
		t.Errorf("Barrier = %v, want BarrierFull", in.Barrier)
	}
}

func TestDecodeRegUseMask(t *testing.T) {
	// add [eax+ecx*2], ebx: 01 1C 48
	code := []byte{0x01, 0x1C, 0x48}
	in, err := Decode(code, 0x1000, Mode32)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for _, r := range []Reg{RegAX, RegCX, RegBX} {
		if in.RegUseMask&(1<<uint(r)) == 0 {
			t.Errorf("RegUseMask missing register %v", r)
		}
	}
	if in.AddrRegMask&(1<<uint(RegBX)) != 0 {
		t.Error("AddrRegMask should not include the ModRM.Reg operand")
	}
}

func TestBytesReturnsEncodedForm(t *testing.T) {
	code := []byte{0x89, 0xD8, 0x90, 0x90}
	in, err := Decode(code, 0x1000, Mode32)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got := in.Bytes()
	if len(got) != 2 || got[0] != 0x89 || got[1] != 0xD8 {
		t.Errorf("Bytes() = %x, want [89 d8]", got)
	}
}

func TestAccessKindClassification(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		mode     Mode
		wantKind AccessKind
		wantSize int
	}{
		{
			name:     "rex.w mov rax,[rdi]",
			code:     []byte{0x48, 0x8B, 0x07},
			mode:     Mode64,
			wantKind: AccessRead,
			wantSize: 8,
		},
		{
			name:     "mov [ebx],eax",
			code:     []byte{0x89, 0x03},
			mode:     Mode32,
			wantKind: AccessWrite,
			wantSize: 4,
		},
		{
			name:     "add [eax],ebx",
			code:     []byte{0x01, 0x18},
			mode:     Mode32,
			wantKind: AccessUpdate,
			wantSize: 4,
		},
		{
			name:     "cmp [eax],ebx",
			code:     []byte{0x39, 0x18},
			mode:     Mode32,
			wantKind: AccessRead,
			wantSize: 4,
		},
		{
			name:     "lea eax,[ebx+4]",
			code:     []byte{0x8D, 0x43, 0x04},
			mode:     Mode32,
			wantKind: AccessNone,
		},
		{
			name:     "movzx eax,byte [ebx]",
			code:     []byte{0x0F, 0xB6, 0x03},
			mode:     Mode32,
			wantKind: AccessRead,
			wantSize: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := Decode(tt.code, 0x1000, tt.mode)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if in.Access != tt.wantKind {
				t.Errorf("Access = %v, want %v", in.Access, tt.wantKind)
			}
			if tt.wantKind != AccessNone && in.AccessSize() != tt.wantSize {
				t.Errorf("AccessSize() = %d, want %d", in.AccessSize(), tt.wantSize)
			}
		})
	}
}
