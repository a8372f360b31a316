package domain

// Sentinels stored in binding mappings.
const (
	// NoInput forces an input port to resolve to nil.
	NoInput = "__no_input__"
	// NoOutput discards an output port instead of writing it to a variable.
	NoOutput = "__no_output__"
)

// MultiInputMode governs how repeated arrivals on one input port combine.
type MultiInputMode string

const (
	MultiInputOverride MultiInputMode = "override"
	MultiInputConcat   MultiInputMode = "concat"
	MultiInputJSON     MultiInputMode = "json"
	MultiInputBatch    MultiInputMode = "batch"
)

// Valid reports whether m is a known mode. The empty mode means override.
func (m MultiInputMode) Valid() bool {
	switch m {
	case "", MultiInputOverride, MultiInputConcat, MultiInputJSON, MultiInputBatch:
		return true
	}
	return false
}

// ParseMode selects the transform applied to an output before it is written.
type ParseMode string

const (
	ParseDefault   ParseMode = "default"
	ParseDelimiter ParseMode = "delimiter"
	ParseField     ParseMode = "field"
	ParseRegex     ParseMode = "regex"
	ParseSequence  ParseMode = "sequence"
)

// Valid reports whether m is a known mode. The empty mode means default.
func (m ParseMode) Valid() bool {
	switch m {
	case "", ParseDefault, ParseDelimiter, ParseField, ParseRegex, ParseSequence:
		return true
	}
	return false
}

// ParseConfig is the output transform for one port.
type ParseConfig struct {
	Mode   ParseMode `json:"mode" yaml:"mode" mapstructure:"mode"`
	Config string    `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
}

// BindingConfig ties a node's ports to global variables.
type BindingConfig struct {
	InputMappings  map[string]string      `json:"inputMappings,omitempty" yaml:"inputMappings,omitempty" mapstructure:"inputMappings"`
	OutputMappings map[string]string      `json:"outputMappings,omitempty" yaml:"outputMappings,omitempty" mapstructure:"outputMappings"`
	CustomInputs   []string               `json:"customInputs,omitempty" yaml:"customInputs,omitempty" mapstructure:"customInputs"`
	CustomOutputs  []string               `json:"customOutputs,omitempty" yaml:"customOutputs,omitempty" mapstructure:"customOutputs"`
	MultiInputMode MultiInputMode         `json:"multiInputMode,omitempty" yaml:"multiInputMode,omitempty" mapstructure:"multiInputMode"`
	OutputParse    map[string]ParseConfig `json:"outputParseConfig,omitempty" yaml:"outputParseConfig,omitempty" mapstructure:"outputParseConfig"`
}

// Clone returns a deep copy of b.
func (b BindingConfig) Clone() BindingConfig {
	c := BindingConfig{
		InputMappings:  make(map[string]string, len(b.InputMappings)),
		OutputMappings: make(map[string]string, len(b.OutputMappings)),
		CustomInputs:   append([]string(nil), b.CustomInputs...),
		CustomOutputs:  append([]string(nil), b.CustomOutputs...),
		MultiInputMode: b.MultiInputMode,
		OutputParse:    make(map[string]ParseConfig, len(b.OutputParse)),
	}
	for k, v := range b.InputMappings {
		c.InputMappings[k] = v
	}
	for k, v := range b.OutputMappings {
		c.OutputMappings[k] = v
	}
	for k, v := range b.OutputParse {
		c.OutputParse[k] = v
	}
	return c
}

// BindingUpdate carries the optional parts of a binding reconfiguration.
// Nil fields leave the current value untouched.
type BindingUpdate struct {
	InputMappings  map[string]string      `json:"inputMappings,omitempty" mapstructure:"inputMappings"`
	OutputMappings map[string]string      `json:"outputMappings,omitempty" mapstructure:"outputMappings"`
	CustomInputs   []string               `json:"customInputs,omitempty" mapstructure:"customInputs"`
	CustomOutputs  []string               `json:"customOutputs,omitempty" mapstructure:"customOutputs"`
	MultiInputMode *MultiInputMode        `json:"multiInputMode,omitempty" mapstructure:"multiInputMode"`
	OutputParse    map[string]ParseConfig `json:"outputParseConfig,omitempty" mapstructure:"outputParseConfig"`
}
