// Package schema provides the type system behind global variables and node configuration.
//
// Every variable type has a strict validator (used by explicit updates) and a
// total coercion path (used when node outputs are written into variables):
//
//	typ, _ := schema.For(domain.TypeNumber)
//	typ.Validate("42")                         // error: strict
//	v, _ := schema.Coerce("42", domain.TypeNumber) // 42.0
//
// Coerce either succeeds, stringifies (string and largeText accept anything),
// or fails with ErrNotCoercible so the caller can decide how to degrade.
//
// Schemas map configuration keys to types and are used to validate node
// configuration when a node is created:
//
//	s := schema.Schema{
//	    "prompt":     schema.String(),
//	    "max_tokens": schema.Optional(schema.Number()),
//	}
//	if err := schema.Validate(s, cfg); err != nil {
//	    // Handle validation errors
//	}
package schema
