// enummod.go — the Enum.* builtins.
//
// whitelist.go's ALLOWED_MODULES entry for "Enum" is an allowlist; this
// table implements exactly that closed set. map/2, filter/2, and reduce/3
// take a function argument, so unlike stringmod.go/mapmod.go's pure value
// transforms, these route through ip.CallClosure — the one place outside
// eval.go itself that the runtime invokes a fn-literal Value, grounded on
// daios-ai-msg/builtin_misc.go's higher-order list builtins.
package runtime

var enumFunctions = map[funcSig]moduleFn{
	{"map", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.map/2", line)
		if err != nil {
			return Value{}, err
		}
		out := make([]Value, len(elems))
		for i, el := range elems {
			v, err := ip.CallClosure(args[1], []Value{el})
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return List(out), nil
	},
	{"filter", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.filter/2", line)
		if err != nil {
			return Value{}, err
		}
		var out []Value
		for _, el := range elems {
			v, err := ip.CallClosure(args[1], []Value{el})
			if err != nil {
				return Value{}, err
			}
			if Truthy(v) {
				out = append(out, el)
			}
		}
		return List(out), nil
	},
	{"reduce", 3}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.reduce/3", line)
		if err != nil {
			return Value{}, err
		}
		acc := args[1]
		for _, el := range elems {
			acc, err = ip.CallClosure(args[2], []Value{el, acc})
			if err != nil {
				return Value{}, err
			}
		}
		return acc, nil
	},
	{"sum", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.sum/1", line)
		if err != nil {
			return Value{}, err
		}
		var intSum int64
		var floatSum float64
		allInt := true
		for _, el := range elems {
			switch el.Tag {
			case TagInt:
				intSum += el.Data.(int64)
				floatSum += float64(el.Data.(int64))
			case TagFloat:
				allInt = false
				floatSum += el.Data.(float64)
			default:
				return Value{}, errf(line, "Enum.sum/1 expects a list of numbers")
			}
		}
		if allInt {
			return Int(intSum), nil
		}
		return Float(floatSum), nil
	},
	{"count", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.count/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(len(elems))), nil
	},
	{"sort", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.sort/1", line)
		if err != nil {
			return Value{}, err
		}
		sorted := append([]Value{}, elems...)
		SortValues(sorted)
		return List(sorted), nil
	},
	{"at", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.at/2", line)
		if err != nil {
			return Value{}, err
		}
		if args[1].Tag != TagInt {
			return Value{}, errf(line, "Enum.at/2 expects an integer index")
		}
		i := args[1].Data.(int64)
		if i < 0 || int(i) >= len(elems) {
			return Nil, nil
		}
		return elems[i], nil
	},
	{"reverse", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.reverse/1", line)
		if err != nil {
			return Value{}, err
		}
		out := make([]Value, len(elems))
		for i, el := range elems {
			out[len(elems)-1-i] = el
		}
		return List(out), nil
	},
	{"member?", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.member?/2", line)
		if err != nil {
			return Value{}, err
		}
		for _, el := range elems {
			if Equal(el, args[1]) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	},
	{"max", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.max/1", line)
		if err != nil {
			return Value{}, err
		}
		if len(elems) == 0 {
			return Value{}, errf(line, "Enum.max/1 of an empty list")
		}
		best := elems[0]
		for _, el := range elems[1:] {
			if Less(best, el) {
				best = el
			}
		}
		return best, nil
	},
	{"min", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.min/1", line)
		if err != nil {
			return Value{}, err
		}
		if len(elems) == 0 {
			return Value{}, errf(line, "Enum.min/1 of an empty list")
		}
		best := elems[0]
		for _, el := range elems[1:] {
			if Less(el, best) {
				best = el
			}
		}
		return best, nil
	},
	{"empty?", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.empty?/1", line)
		if err != nil {
			return Value{}, err
		}
		return Bool(len(elems) == 0), nil
	},
	{"uniq", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.uniq/1", line)
		if err != nil {
			return Value{}, err
		}
		var out []Value
		for _, el := range elems {
			seen := false
			for _, o := range out {
				if Equal(o, el) {
					seen = true
					break
				}
			}
			if !seen {
				out = append(out, el)
			}
		}
		return List(out), nil
	},
	{"join", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.join/2", line)
		if err != nil {
			return Value{}, err
		}
		sep, err := requireString(args[1], "Enum.join/2", line)
		if err != nil {
			return Value{}, err
		}
		out := ""
		for i, el := range elems {
			if i > 0 {
				out += sep
			}
			out += el.String()
		}
		return String(out), nil
	},
	{"zip", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		a, err := requireList(args[0], "Enum.zip/2", line)
		if err != nil {
			return Value{}, err
		}
		b, err := requireList(args[1], "Enum.zip/2", line)
		if err != nil {
			return Value{}, err
		}
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		out := make([]Value, n)
		for i := 0; i < n; i++ {
			out[i] = Tuple([]Value{a[i], b[i]})
		}
		return List(out), nil
	},
	{"into", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		elems, err := requireList(args[0], "Enum.into/2", line)
		if err != nil {
			return Value{}, err
		}
		if args[1].Tag != TagMap {
			return Value{}, errf(line, "Enum.into/2 only supports a map collectable")
		}
		clone := args[1].Data.(*MapValue).Clone()
		for _, el := range elems {
			if el.Tag != TagTuple || len(el.Data.([]Value)) != 2 {
				return Value{}, errf(line, "Enum.into/2 expects a list of {key, value} tuples")
			}
			pair := el.Data.([]Value)
			clone.Set(pair[0], pair[1])
		}
		return Map(clone), nil
	},
}

func requireList(v Value, who string, line int) ([]Value, error) {
	if v.Tag != TagList {
		return nil, errf(line, "%s expects a list", who)
	}
	return v.Data.([]Value), nil
}
