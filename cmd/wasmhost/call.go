package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type funcInfo struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// exportedFuncs lists a compiled module's function exports by name.
func exportedFuncs(compiled wazero.CompiledModule) []funcInfo {
	defs := compiled.ExportedFunctions()
	funcs := make([]funcInfo, 0, len(defs))
	for name, def := range defs {
		funcs = append(funcs, funcInfo{name: name, params: def.ParamTypes(), results: def.ResultTypes()})
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].name < funcs[j].name })
	return funcs
}

func (f funcInfo) signature() string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = api.ValueTypeName(p)
	}
	sig := f.name + "(" + strings.Join(params, ", ") + ")"
	if len(f.results) > 0 {
		results := make([]string, len(f.results))
		for i, r := range f.results {
			results[i] = api.ValueTypeName(r)
		}
		sig += " -> " + strings.Join(results, ", ")
	}
	return sig
}

// parseValue encodes a command-line argument as a core value.
func parseValue(s string, t api.ValueType) (uint64, error) {
	s = strings.TrimSpace(s)
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			// Allow the unsigned half of the range too.
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return 0, err
			}
			return api.EncodeU32(uint32(u)), nil
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return 0, err
			}
			return u, nil
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		return api.EncodeF32(float32(v)), err
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		return api.EncodeF64(v), err
	default:
		return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
	}
}

func parseArgs(f funcInfo, args []string) ([]uint64, error) {
	if len(args) != len(f.params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", f.signature(), len(f.params), len(args))
	}
	out := make([]uint64, len(args))
	for i, a := range args {
		v, err := parseValue(a, f.params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func formatValue(v uint64, t api.ValueType) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(api.DecodeI32(v)), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("%#x", v)
	}
}

func formatResults(vals []uint64, types []api.ValueType) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		t := api.ValueTypeExternref
		if i < len(types) {
			t = types[i]
		}
		parts[i] = formatValue(v, t)
	}
	return strings.Join(parts, " ")
}

// suggest returns the candidate closest to name when it is close enough to
// be a likely typo.
func suggest(name string, candidates []string) (string, bool) {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return "", false
	}
	return best, true
}

func unknownExport(name string, funcs []funcInfo) error {
	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.name
	}
	if s, ok := suggest(name, names); ok {
		return fmt.Errorf("no exported function %q, did you mean %q?", name, s)
	}
	return fmt.Errorf("no exported function %q", name)
}
