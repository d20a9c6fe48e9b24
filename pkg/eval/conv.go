package eval

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/eclipse-che/debugd/pkg/proc"
)

// Variable is an evaluation result.
type Variable = proc.Variable

// ToValue converts the values produced by a YAML or JSON decoder into
// starlark values.
func ToValue(v interface{}) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []interface{}:
		elems := make([]starlark.Value, len(v))
		for i := range v {
			e, err := ToValue(v[i])
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return starlark.NewList(elems), nil
	case map[interface{}]interface{}:
		d := starlark.NewDict(len(v))
		for k, e := range v {
			sk, err := ToValue(k)
			if err != nil {
				return nil, err
			}
			se, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(sk, se); err != nil {
				return nil, err
			}
		}
		return d, nil
	case map[string]interface{}:
		d := starlark.NewDict(len(v))
		for k, e := range v {
			se, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), se); err != nil {
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("unsupported value %v of type %T", v, v)
}

// ToVariable describes v.
func ToVariable(name string, v starlark.Value) Variable {
	r := Variable{Name: name, Kind: v.Type(), Value: v.String()}
	switch v := v.(type) {
	case starlark.Bool:
		if v {
			r.Value = "true"
		} else {
			r.Value = "false"
		}
	case *starlark.Dict:
		keys := v.Keys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			e, _, _ := v.Get(k)
			r.Children = append(r.Children, ToVariable(k.String(), e))
		}
	case starlark.Indexable:
		if _, isString := v.(starlark.String); isString {
			break
		}
		for i := 0; i < v.Len(); i++ {
			r.Children = append(r.Children, ToVariable(fmt.Sprintf("[%d]", i), v.Index(i)))
		}
	}
	return r
}
