// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package expr builds SQL expression trees and compiles them into SQL fragments
for a particular dialect.

Compilation happens in two stages.

# Resolution

An expression is first resolved against a Query, the context that knows which
model (table) the expression refers to. Resolution turns field references into
physical columns and checks that aggregates are used sensibly. Resolution never
modifies a node: it returns a new, independent tree. Resolved trees are not
mutated afterwards, so several goroutines may compile them at once.

# Compilation

A Compiler walks a resolved tree top-down. For each node it looks for a
vendor-specific renderer registered for the active dialect and falls back to
the node's generic AsSQL method. Every fragment uses "?" placeholders, and the
parameters are returned in the order the placeholders appear in the text.
Vendors with numbered placeholders have them rewritten once the whole statement
is assembled (see dialect.Connection.Rebind).
*/
package expr
