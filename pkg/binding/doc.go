// Package binding translates node ports into values and back.
//
// Inputs come from variables, upstream connections or config defaults.
// Outputs are optionally parsed, coerced to the target variable's type and
// written into the variable store. Config strings may reference inputs,
// outputs and variables with `{{ name }}` templates.
package binding
