// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm abstracts disassembling machine code from various
// architectures.
package asm

import (
	"fmt"

	"github.com/nanokernel/modloader/arch"
)

// Disasm disassembles machine code for the given architecture. pc is
// the program counter at which text begins.
func Disasm(arch *arch.Arch, text []byte, pc uint64) (Seq, error) {
	switch arch.GoArch {
	case "amd64":
		return disasmX86(text, pc, 64), nil
	case "386":
		return disasmX86(text, pc, 32), nil
	}
	return nil, fmt.Errorf("unsupported assembly architecture: %s", arch)
}

// Seq is a sequence of instructions.
type Seq interface {
	Len() int
	Get(i int) Inst
}

// Inst is a single machine instruction.
type Inst interface {
	// GoSyntax returns the Go assembler syntax representation of
	// this instruction. symname, if non-nil, must return the name
	// and base of the symbol containing address addr, or "" if
	// symbol lookup fails.
	GoSyntax(symName func(addr uint64) (string, uint64)) string

	// PC returns the address of this instruction.
	PC() uint64

	// Len returns the length of this instruction in bytes.
	Len() int

	// Control returns the control-flow effects of this
	// instruction.
	Control() Control
}

// Control captures control-flow effects of an instruction.
type Control struct {
	Type        ControlType
	Conditional bool
	TargetPC    uint64
	Target      Arg
}

type ControlType uint8

const (
	ControlNone ControlType = iota
	ControlJump
	ControlCall
	ControlRet

	// ControlJumpUnknown is a jump with an unknown target. This
	// means the control analysis could be incomplete, since this
	// could jump to an instruction in the analyzed function.
	ControlJumpUnknown

	// ControlExit is like a call that never returns.
	ControlExit
)

// Arg is an argument to an instruction.
type Arg interface {
}

// Line is one disassembled instruction, formatted for display.
type Line struct {
	PC     uint64
	Length int
	Syntax string
}

// DisassembleX86 disassembles text (amd64 machine code) starting at pc and
// returns one Line per decoded instruction. symName, if non-nil, resolves an
// address to a symbol name and base for GoSyntax rendering.
func DisassembleX86(text []byte, pc uint64, symName func(addr uint64) (string, uint64)) ([]Line, error) {
	seq, err := Disasm(arch.AMD64, text, pc)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		inst := seq.Get(i)
		lines[i] = Line{PC: inst.PC(), Length: inst.Len(), Syntax: inst.GoSyntax(symName)}
	}
	return lines, nil
}
