/*
Package nodeweave is a node-graph engine for building AI workflows on a canvas.

A graph is made of typed nodes with named input and output ports. Outputs flow
to downstream inputs through connections, and every port can also be bound to
a global variable so values survive between executions and can be shared by
nodes that are not connected at all.

# Concept

The engine owns three things: the graph, the variable store and the
coordinator. Nodes run one at a time per node and only when asked to. When a
node runs its inputs are resolved (connection inbox, then explicit variable
mapping, then the variable named after the port), its config is interpolated
with {{ name }} templates, its behavior is invoked, and its outputs are written
back to their mapped variables and delivered downstream.

Manual-input node types, such as text.input, stop in the waiting state until a
human supplies a value with Resume.

# Key Features

  - Typed variables with coercion between string, number, boolean, json, array and binary.
  - Per-port variable bindings with automatic naming from node labels.
  - Multi-input merge modes (override, concat, json, batch) and output parsing (json field, regex, delimiter, line).
  - Lifecycle hooks for status and variable changes.
  - Export and import of the whole graph, optionally with its variables.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/nodeweave"
	)

	func main() {
		eng := nodeweave.New()
		ctx := context.Background()

		topic, _ := eng.AddNode("text.template", map[string]any{"label": "Topic", "template": "gophers"})
		shout, _ := eng.AddNode("text.transform", map[string]any{"operation": "upper"})
		if _, err := eng.Connect(topic.ID, "text", shout.ID, "text"); err != nil {
			log.Fatal(err)
		}

		if _, err := eng.Execute(ctx, topic.ID); err != nil {
			log.Fatal(err)
		}
		res, err := eng.Execute(ctx, shout.ID)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(res.Outputs["text"]) // GOPHERS
	}
*/
package nodeweave
