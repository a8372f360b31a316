/*
Package dsl provides a fluent Go builder for NodeWeave graph documents.

It is an alternative to hand-written JSON or YAML documents that lets node IDs,
connections and variable bindings be checked by the compiler and generated
programmatically. The result is a *domain.GraphDocument that can be imported
into an engine or saved through a store.

Example usage:

	b := dsl.New()

	b.Add("topic", "text.template").
		Label("Topic").
		Set("template", "gophers").
		To("text", "shout", "text")

	b.Add("shout", "text.transform").
		Set("operation", "upper").
		Write("text", "headline")

	doc, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	eng := nodeweave.New()
	if err := eng.Import(ctx, doc); err != nil {
		log.Fatal(err)
	}
*/
package dsl
