// mapmod.go — the Map.* and Access.get/2 builtins.
//
// whitelist.go admits all Map.* functions (policyAllFunctions) and exactly
// Access.get/2; both are routed through this one table by eval.go's call()
// since they share the same "ordered map" backing value. Grounded on
// daios-ai-msg/builtin_misc.go's map helpers, adapted to this runtime's
// MapValue.
package runtime

var mapFunctions = map[funcSig]moduleFn{
	{"get", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.get/2", line)
		if err != nil {
			return Value{}, err
		}
		if v, ok := mv.Get(args[1]); ok {
			return v, nil
		}
		return Nil, nil
	},
	{"get", 3}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.get/3", line)
		if err != nil {
			return Value{}, err
		}
		if v, ok := mv.Get(args[1]); ok {
			return v, nil
		}
		return args[2], nil
	},
	{"put", 3}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.put/3", line)
		if err != nil {
			return Value{}, err
		}
		clone := mv.Clone()
		clone.Set(args[1], args[2])
		return Map(clone), nil
	},
	{"delete", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.delete/2", line)
		if err != nil {
			return Value{}, err
		}
		clone := NewMap()
		mv.Each(func(k, v Value) {
			if !Equal(k, args[1]) {
				clone.Set(k, v)
			}
		})
		return Map(clone), nil
	},
	{"has_key?", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.has_key?/2", line)
		if err != nil {
			return Value{}, err
		}
		_, ok := mv.Get(args[1])
		return Bool(ok), nil
	},
	{"keys", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.keys/1", line)
		if err != nil {
			return Value{}, err
		}
		var keys []Value
		mv.Each(func(k, _ Value) { keys = append(keys, k) })
		return List(keys), nil
	},
	{"values", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.values/1", line)
		if err != nil {
			return Value{}, err
		}
		var vals []Value
		mv.Each(func(_, v Value) { vals = append(vals, v) })
		return List(vals), nil
	},
	{"merge", 2}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		a, err := requireMap(args[0], "Map.merge/2", line)
		if err != nil {
			return Value{}, err
		}
		b, err := requireMap(args[1], "Map.merge/2", line)
		if err != nil {
			return Value{}, err
		}
		clone := a.Clone()
		b.Each(func(k, v Value) { clone.Set(k, v) })
		return Map(clone), nil
	},
	{"size", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.size/1", line)
		if err != nil {
			return Value{}, err
		}
		return Int(int64(mv.Len())), nil
	},
	{"to_list", 1}: func(ip *Interpreter, args []Value, line int) (Value, error) {
		mv, err := requireMap(args[0], "Map.to_list/1", line)
		if err != nil {
			return Value{}, err
		}
		var pairs []Value
		mv.Each(func(k, v Value) { pairs = append(pairs, Tuple([]Value{k, v})) })
		return List(pairs), nil
	},
}

func requireMap(v Value, who string, line int) (*MapValue, error) {
	if v.Tag != TagMap {
		return nil, errf(line, "%s expects a map", who)
	}
	return v.Data.(*MapValue), nil
}
