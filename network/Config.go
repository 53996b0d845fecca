package network

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/samuelfneumann/rlnet/initwfn"
	G "gorgonia.org/gorgonia"
)

// Type describes the different network architectures that can be
// built from configuration files
type Type string

// Available network types
const (
	QNetType        Type = "QNet"
	DRQNType        Type = "DRQN"
	ActorCriticType Type = "ActorCritic"
)

// Defaults used for zero-valued configuration fields
const (
	DefaultSigmaInit = 0.5
	DefaultSupport   = 51
	DefaultGRUSize   = 512
	DefaultConvOut   = 64
)

// Config describes a network and can create the network it describes
type Config interface {
	// Create builds the network on the graph g
	Create(g *G.ExprGraph, seed uint64) (Network, error)

	// Type returns the type of network described
	Type() Type
}

// Spec wraps a Config so that it can be JSON marshalled and
// unmarshalled
type Spec struct {
	Type
	Config
}

// NewSpec returns a new Spec wrapping c
func NewSpec(c Config) Spec {
	return Spec{Type: c.Type(), Config: c}
}

// Create builds the network described by the Spec on the graph g
func (s Spec) Create(g *G.ExprGraph, seed uint64) (Network, error) {
	if s.Config == nil {
		return nil, fmt.Errorf("create: %w: empty spec", ErrConfig)
	}
	return s.Config.Create(g, seed)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Spec) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(QNetType):        reflect.TypeOf(QNetConfig{}),
			string(DRQNType):        reflect.TypeOf(DRQNConfig{}),
			string(ActorCriticType): reflect.TypeOf(ActorCriticConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJSONField, valueJSONField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	var typeName string
	if err := json.Unmarshal(m[typeJSONField], &typeName); err != nil {
		return nil, "", fmt.Errorf("unmarshalConfig: %w: missing %v field",
			ErrConfig, typeJSONField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: %w: unknown type %v",
			ErrConfig, typeName)
	}

	value := reflect.New(ty)
	if raw, ok := m[valueJSONField]; ok {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return nil, "", err
		}
	}

	return value.Elem().Interface().(Config), Type(typeName), nil
}

// sigmaInit returns s or the default if s is zero
func sigmaInit(s float64) float64 {
	if s == 0 {
		return DefaultSigmaInit
	}
	return s
}

// orDefault returns v or def if v is zero
func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// weightInit returns the Gorgonia InitWFn of init, or nil if init is
// nil
func weightInit(init *initwfn.InitWFn) G.InitWFn {
	if init == nil {
		return nil
	}
	return init.InitWFn()
}

// QNetConfig describes a QNet. Support defaults to DefaultSupport for
// distributional heads.
type QNetConfig struct {
	InputShape   []int
	NumActions   int
	Dueling      bool
	Distribution Distribution
	Support      int
	Noisy        bool
	SigmaInit    float64
	Body         BodyType
	InitWFn      *initwfn.InitWFn `json:",omitempty"`
}

// Type returns the type of network described
func (c QNetConfig) Type() Type {
	return QNetType
}

// Architecture returns the head architecture described
func (c QNetConfig) Architecture() Architecture {
	arch := Architecture{Dueling: c.Dueling, Distribution: c.Distribution}
	if arch.distributional() {
		arch.Support = orDefault(c.Support, DefaultSupport)
	}
	return arch
}

// Create builds the QNet on the graph g
func (c QNetConfig) Create(g *G.ExprGraph, seed uint64) (Network, error) {
	body, err := c.Body.Func()
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	net, err := NewQNet(g, c.InputShape, c.NumActions, c.Architecture(),
		c.Noisy, sigmaInit(c.SigmaInit), body, weightInit(c.InitWFn), seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return net, nil
}

// DRQNConfig describes a DRQN
type DRQNConfig struct {
	InputShape    []int
	NumActions    int
	GRUSize       int
	Bidirectional bool
	Noisy         bool
	SigmaInit     float64
	Body          BodyType
	InitWFn       *initwfn.InitWFn `json:",omitempty"`
}

// Type returns the type of network described
func (c DRQNConfig) Type() Type {
	return DRQNType
}

// Create builds the DRQN on the graph g
func (c DRQNConfig) Create(g *G.ExprGraph, seed uint64) (Network, error) {
	body, err := c.Body.Func()
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	net, err := NewDRQN(g, c.InputShape, c.NumActions,
		orDefault(c.GRUSize, DefaultGRUSize), c.Bidirectional, c.Noisy,
		sigmaInit(c.SigmaInit), body, weightInit(c.InitWFn), seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return net, nil
}

// ActorCriticConfig describes an ActorCritic
type ActorCriticConfig struct {
	InputShape []int
	NumActions int
	ConvOut    int
	GRUSize    int
	Recurrent  bool
	Noisy      bool
	SigmaInit  float64
}

// Type returns the type of network described
func (c ActorCriticConfig) Type() Type {
	return ActorCriticType
}

// Create builds the ActorCritic on the graph g
func (c ActorCriticConfig) Create(g *G.ExprGraph, seed uint64) (Network,
	error) {
	net, err := NewActorCritic(g, c.InputShape, c.NumActions,
		orDefault(c.ConvOut, DefaultConvOut),
		orDefault(c.GRUSize, DefaultGRUSize), c.Recurrent, c.Noisy,
		sigmaInit(c.SigmaInit), seed)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return net, nil
}
