// stringmod.go — the String.* builtins.
//
// whitelist.go's ALLOWED_MODULES entry for "String" is a denylist (every
// function but to_atom/1 and to_existing_atom/1 is admitted), so V will let
// through any String.foo/N call; this table implements the common,
// genuinely side-effect-free subset a sandboxed program would plausibly
// need, grounded on daios-ai-msg/builtin_strings.go's function set
// translated from byte-slice to Go string operations. A String.foo/N call
// that clears V but has no entry here fails at the runtime boundary with
// "undefined function", the same outcome an unimplemented Kernel builtin
// would produce.
package runtime

import (
	"strconv"
	"strings"
)

var stringFunctions = map[funcSig]moduleFn{
	{"upcase", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.upcase/1", line)
		if err != nil {
			return Value{}, err
		}
		return String(strings.ToUpper(s)), nil
	},
	{"downcase", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.downcase/1", line)
		if err != nil {
			return Value{}, err
		}
		return String(strings.ToLower(s)), nil
	},
	{"trim", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.trim/1", line)
		if err != nil {
			return Value{}, err
		}
		return String(strings.TrimSpace(s)), nil
	},
	{"length", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.length/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(len([]rune(s)))), nil
	},
	{"reverse", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.reverse/1", line)
		if err != nil {
			return Value{}, err
		}
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return String(string(runes)), nil
	},
	{"split", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.split/2", line)
		if err != nil {
			return Value{}, err
		}
		sep, err := requireString(args[1], "String.split/2", line)
		if err != nil {
			return Value{}, err
		}
		parts := strings.Split(s, sep)
		vals := make([]Value, len(parts))
		for i, p := range parts {
			vals[i] = String(p)
		}
		return List(vals), nil
	},
	{"contains?", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.contains?/2", line)
		if err != nil {
			return Value{}, err
		}
		sub, err := requireString(args[1], "String.contains?/2", line)
		if err != nil {
			return Value{}, err
		}
		return Bool(strings.Contains(s, sub)), nil
	},
	{"starts_with?", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.starts_with?/2", line)
		if err != nil {
			return Value{}, err
		}
		prefix, err := requireString(args[1], "String.starts_with?/2", line)
		if err != nil {
			return Value{}, err
		}
		return Bool(strings.HasPrefix(s, prefix)), nil
	},
	{"ends_with?", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.ends_with?/2", line)
		if err != nil {
			return Value{}, err
		}
		suffix, err := requireString(args[1], "String.ends_with?/2", line)
		if err != nil {
			return Value{}, err
		}
		return Bool(strings.HasSuffix(s, suffix)), nil
	},
	{"replace", 3}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.replace/3", line)
		if err != nil {
			return Value{}, err
		}
		old, err := requireString(args[1], "String.replace/3", line)
		if err != nil {
			return Value{}, err
		}
		newStr, err := requireString(args[2], "String.replace/3", line)
		if err != nil {
			return Value{}, err
		}
		return String(strings.ReplaceAll(s, old, newStr)), nil
	},
	{"to_integer", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		s, err := requireString(args[0], "String.to_integer/1", line)
		if err != nil {
			return Value{}, err
		}
		n, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			return Value{}, errf(line, "String.to_integer/1: not an integer: %q", s)
		}
		return Int(n), nil
	},
}

func requireString(v Value, who string, line int) (string, error) {
	if v.Tag != TagString {
		return "", errf(line, "%s expects a string", who)
	}
	return v.Data.(string), nil
}
