// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"

	"github.com/canonical/sqlexpr/dialect"
)

// FuncDef declares a SQL function.
type FuncDef struct {
	// Name is used in the String form of calls, e.g. "ArcCos".
	Name string
	// Function is the SQL function name, e.g. "ACOS".
	Function string
	// Output is the result type. UnknownField means the type of the first
	// argument.
	Output FieldType
	// Arity is the number of arguments the function takes. Zero means any.
	Arity int
	// Template formats the call. %[1]s is the function name and %[2]s the
	// comma separated arguments. It defaults to "%[1]s(%[2]s)".
	Template string
	// Vendor replaces Function for the vendors listed.
	Vendor map[dialect.Vendor]string
}

const defaultFuncTemplate = "%[1]s(%[2]s)"

// Call returns a call of the function with args. Strings name fields and
// other non-expression values are bound as parameters. Call panics if the
// number of arguments does not match the arity of the function.
func (d *FuncDef) Call(args ...any) *Func {
	if d.Arity > 0 && len(args) != d.Arity {
		panic(fmt.Sprintf("%s takes %d arguments, got %d", d.Name, d.Arity, len(args)))
	}
	return &Func{def: d, args: parseExpressions(args)}
}

var (
	ArcCosFunc = &FuncDef{Name: "ArcCos", Function: "ACOS", Output: FloatField, Arity: 1}
	ArcSinFunc = &FuncDef{Name: "ArcSin", Function: "ASIN", Output: FloatField, Arity: 1}
	CosFunc    = &FuncDef{Name: "Cos", Function: "COS", Output: FloatField, Arity: 1}
	CotFunc    = &FuncDef{Name: "Cot", Function: "COT", Output: FloatField, Arity: 1}
	LogFunc    = &FuncDef{Name: "Log", Function: "LOG", Output: FloatField, Arity: 2}
	Log10Func  = &FuncDef{Name: "Log10", Function: "LOG10", Output: FloatField, Arity: 1}
	PowerFunc  = &FuncDef{
		Name:     "Power",
		Function: "POW",
		Output:   FloatField,
		Arity:    2,
		Vendor: map[dialect.Vendor]string{
			// Not every SQLite build has the math functions. The driver
			// registered by package sqlexpr provides this one.
			dialect.SQLite: "sqlexpr_power",
		},
	}
	RoundFunc = &FuncDef{Name: "Round", Function: "ROUND", Output: IntegerField, Arity: 1}
	SinFunc   = &FuncDef{Name: "Sin", Function: "SIN", Output: FloatField, Arity: 1}
	SqrtFunc  = &FuncDef{Name: "Sqrt", Function: "SQRT", Output: FloatField, Arity: 1}
	TanFunc   = &FuncDef{Name: "Tan", Function: "TAN", Output: FloatField, Arity: 1}
	NowFunc   = &FuncDef{Name: "Now", Function: "CURRENT_TIMESTAMP", Output: DateTimeField, Template: "%[1]s"}
)

func ArcCos(x any) *Func { return ArcCosFunc.Call(x) }
func ArcSin(x any) *Func { return ArcSinFunc.Call(x) }
func Cos(x any) *Func { return CosFunc.Call(x) }
func Cot(x any) *Func { return CotFunc.Call(x) }
func Log10(x any) *Func { return Log10Func.Call(x) }
func Round(x any) *Func { return RoundFunc.Call(x) }
func Sin(x any) *Func { return SinFunc.Call(x) }
func Sqrt(x any) *Func { return SqrtFunc.Call(x) }
func Tan(x any) *Func { return TanFunc.Call(x) }
func Now() *Func { return NowFunc.Call() }
func Log(base, x any) *Func { return LogFunc.Call(base, x) }

// Power raises x to the power y.
func Power(x, y any) *Func { return PowerFunc.Call(x, y) }

// Func is a call of a function declared by a FuncDef.
type Func struct {
	def  *FuncDef
	args []Expression
}

// Def returns the function declaration.
func (f *Func) Def() *FuncDef {
	return f.def
}

func (f *Func) ResolveExpression(q *Query, opts ResolveOptions) (Expression, error) {
	args, err := resolveAll(f.args, q, opts)
	if err != nil {
		return nil, err
	}
	return &Func{def: f.def, args: args}, nil
}

func (f *Func) VendorSQL(v dialect.Vendor) (Renderer, bool) {
	function, ok := f.def.Vendor[v]
	if !ok {
		return nil, false
	}
	return func(c *Compiler, _ *dialect.Connection) (string, []any, error) {
		return f.render(c, function)
	}, true
}

func (f *Func) AsSQL(c *Compiler, _ *dialect.Connection) (string, []any, error) {
	return f.render(c, f.def.Function)
}

func (f *Func) render(c *Compiler, function string) (string, []any, error) {
	args, params, err := c.compileList(f.args, ", ")
	if err != nil {
		return "", nil, err
	}
	template := f.def.Template
	if template == "" {
		template = defaultFuncTemplate
	}
	return fmt.Sprintf(template, function, args), params, nil
}

// GroupByCols returns the call itself, unless it wraps an aggregate: then
// the grouping columns are those of its arguments.
func (f *Func) GroupByCols() []Expression {
	if !f.ContainsAggregate() {
		return []Expression{f}
	}
	var cols []Expression
	for _, arg := range f.args {
		cols = append(cols, arg.GroupByCols()...)
	}
	return cols
}

func (f *Func) ContainsAggregate() bool {
	return containsAggregate(f.args)
}

func (f *Func) OutputField() FieldType {
	if f.def.Output != UnknownField || len(f.args) == 0 {
		return f.def.Output
	}
	return f.args[0].OutputField()
}

func (f *Func) String() string {
	var b strings.Builder
	b.WriteString(f.def.Name)
	b.WriteString("(")
	b.WriteString(joinStrings(f.args, ", "))
	b.WriteString(")")
	return b.String()
}
