// Package parser reads the reasoning engine's replies.
//
// The dispatch protocol asks the engine two narrow questions per tool turn:
// whether live data is needed, and which endpoint to read. The replies are
// parsed into tagged variants instead of being trusted as free text:
//
//	switch parser.ParseClassification(reply) {
//	case parser.Yes:       // fetch
//	case parser.No:        // answer from history
//	case parser.Ambiguous: // protocol error
//	}
//
//	d := parser.ParseEndpointDirective(reply)
//	if !d.Valid() { ... }
//	fmt.Println(d.Method, d.Path)
//
// Reasoning models such as deepseek-r1 wrap their chain of thought in
// <think> tags. StripReasoning removes those blocks and is applied to every
// reply before it is parsed or shown to a user.
package parser
