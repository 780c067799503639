// Package testbed assembles small WebAssembly binaries for tests and hosts
// the end-to-end boot tests.
package testbed

import "bytes"

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// FuncType is a function signature.
type FuncType struct {
	Params  []byte
	Results []byte
}

// Import is a function import of type index Type.
type Import struct {
	Module string
	Name   string
	Type   uint32
}

// Func is a function body. Body excludes the trailing end opcode.
type Func struct {
	Export string
	Locals []byte
	Body   []byte
	Type   uint32
}

// Data is an active data segment in memory 0.
type Data struct {
	Bytes  []byte
	Offset uint32
}

// Module describes a core module. Function indices count imports first.
type Module struct {
	Types        []FuncType
	Imports      []Import
	Funcs        []Func
	Data         []Data
	ExportMemory string
	MemoryPages  uint32
	Start        int
	HasMemory    bool
	HasStart     bool
}

// Empty is the smallest valid module.
func Empty() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

// Encode returns the module binary.
func (m Module) Encode() []byte {
	out := Empty()

	if len(m.Types) > 0 {
		var b []byte
		b = uleb(b, uint32(len(m.Types)))
		for _, t := range m.Types {
			b = append(b, 0x60)
			b = vec(b, t.Params)
			b = vec(b, t.Results)
		}
		out = section(out, 1, b)
	}

	if len(m.Imports) > 0 {
		var b []byte
		b = uleb(b, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			b = name(b, imp.Module)
			b = name(b, imp.Name)
			b = append(b, 0x00)
			b = uleb(b, imp.Type)
		}
		out = section(out, 2, b)
	}

	if len(m.Funcs) > 0 {
		var b []byte
		b = uleb(b, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			b = uleb(b, f.Type)
		}
		out = section(out, 3, b)
	}

	if m.HasMemory {
		b := []byte{0x01, 0x00}
		b = uleb(b, m.MemoryPages)
		out = section(out, 5, b)
	}

	var exports [][]byte
	for i, f := range m.Funcs {
		if f.Export == "" {
			continue
		}
		e := name(nil, f.Export)
		e = append(e, 0x00)
		e = uleb(e, uint32(len(m.Imports)+i))
		exports = append(exports, e)
	}
	if m.HasMemory && m.ExportMemory != "" {
		e := name(nil, m.ExportMemory)
		e = append(e, 0x02, 0x00)
		exports = append(exports, e)
	}
	if len(exports) > 0 {
		b := uleb(nil, uint32(len(exports)))
		b = append(b, bytes.Join(exports, nil)...)
		out = section(out, 7, b)
	}

	if m.HasStart {
		out = section(out, 8, uleb(nil, uint32(m.Start)))
	}

	if len(m.Funcs) > 0 {
		var b []byte
		b = uleb(b, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			var body []byte
			body = uleb(body, uint32(len(f.Locals)))
			for _, l := range f.Locals {
				body = append(body, 0x01, l)
			}
			body = append(body, f.Body...)
			body = append(body, 0x0b)
			b = uleb(b, uint32(len(body)))
			b = append(b, body...)
		}
		out = section(out, 10, b)
	}

	if len(m.Data) > 0 {
		var b []byte
		b = uleb(b, uint32(len(m.Data)))
		for _, d := range m.Data {
			b = append(b, 0x00)
			b = append(b, I32Const(int32(d.Offset))...)
			b = append(b, 0x0b)
			b = vec(b, d.Bytes)
		}
		out = section(out, 11, b)
	}

	return out
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	return sleb([]byte{0x41}, int64(v))
}

// Call encodes call idx.
func Call(idx uint32) []byte {
	return uleb([]byte{0x10}, idx)
}

// LocalGet encodes local.get idx.
func LocalGet(idx uint32) []byte {
	return uleb([]byte{0x20}, idx)
}

// Drop discards the top of the stack.
func Drop() []byte { return []byte{0x1a} }

// Unreachable traps.
func Unreachable() []byte { return []byte{0x00} }

// Seq concatenates instructions.
func Seq(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func section(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = uleb(out, uint32(len(content)))
	return append(out, content...)
}

func vec(out, items []byte) []byte {
	out = uleb(out, uint32(len(items)))
	return append(out, items...)
}

func name(out []byte, s string) []byte {
	return vec(out, []byte(s))
}

func uleb(out []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		out = append(out, c)
		if v == 0 {
			return out
		}
	}
}

func sleb(out []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		out = append(out, c)
		if done {
			return out
		}
	}
}
