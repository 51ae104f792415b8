// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains the reflection code used to describe Go structs as
database models. As much as possible, reflection code is limited to this
package. A struct field takes part in a model when it carries a `db` tag naming
its column; the field's logical name is the snake_case form of the Go field
name.
*/
package typeinfo
