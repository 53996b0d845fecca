// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be JSON serialized into configuraiton files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU    Type = "GlorotU"
	GlorotN    Type = "GlorotN"
	HeU        Type = "HeU"
	HeN        Type = "HeN"
	Zeroes     Type = "Zeroes"
	Ones       Type = "Ones"
	Constant   Type = "Constant"
	Uniform    Type = "Uniform"
	Gaussian   Type = "Gaussian"
	Orthogonal Type = "Orthogonal"
)

// InitWFn wraps Gorgonia InitWFn so that they can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) (*InitWFn, error) {
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// Values draws a new set of float64 weights of the given shape from
// the initializer.
func (w *InitWFn) Values(shape ...int) ([]float64, error) {
	values, ok := w.initWFn(tensor.Float64, shape...).([]float64)
	if !ok {
		return nil, fmt.Errorf("values: initializer %v did not produce "+
			"float64 weights", w.Type)
	}
	return values, nil
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(GlorotU):    reflect.TypeOf(GlorotUConfig{}),
			string(GlorotN):    reflect.TypeOf(GlorotNConfig{}),
			string(HeU):        reflect.TypeOf(HeUConfig{}),
			string(HeN):        reflect.TypeOf(HeNConfig{}),
			string(Zeroes):     reflect.TypeOf(ZeroesConfig{}),
			string(Ones):       reflect.TypeOf(OnesConfig{}),
			string(Constant):   reflect.TypeOf(ConstantConfig{}),
			string(Uniform):    reflect.TypeOf(UniformConfig{}),
			string(Gaussian):   reflect.TypeOf(GaussianConfig{}),
			string(Orthogonal): reflect.TypeOf(OrthogonalConfig{}),
		})
	if err != nil {
		return err
	}

	i.Type = typeName
	i.Config = config
	i.initWFn = i.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into the
// concrete type registered for its Type. A missing value field leaves
// the Config zero valued.
func unmarshalConfig(data []byte, typeJSONField, valueJSONField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, "", fmt.Errorf("unmarshalConfig: %w", err)
	}

	var typeName string
	if err := json.Unmarshal(fields[typeJSONField], &typeName); err != nil {
		return nil, "", fmt.Errorf("unmarshalConfig: missing %v field",
			typeJSONField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown initializer "+
			"type %v", typeName)
	}

	value := reflect.New(ty)
	if raw, ok := fields[valueJSONField]; ok {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return nil, "", fmt.Errorf("unmarshalConfig: %v config: %w",
				typeName, err)
		}
	}
	return value.Elem().Interface().(Config), Type(typeName), nil
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}
