package syntax

import "strings"

// groovySyntax renders bridge operations as Groovy source text, for workers
// embedding a JVM/Groovy interpreter.
type groovySyntax struct{}

func (groovySyntax) Name() string { return "groovy" }

func (groovySyntax) GetVar(varName string) string { return varName }

func (groovySyntax) PutVar(varName, expr string) string {
	return varName + " = " + expr + "\ntask.export([" + varName + ": " + varName + "])"
}

func (groovySyntax) Call(funcName string, args []string) string {
	return funcName + "(" + strings.Join(args, ", ") + ")"
}

func (groovySyntax) Import(module string) string {
	return "import " + module
}

func (groovySyntax) GetAttribute(obj, attr string) string {
	return obj + "." + attr
}

func (groovySyntax) InvokeMethod(obj, method string, argVars []string) string {
	return obj + "." + method + "(" + strings.Join(argVars, ", ") + ")"
}

func (groovySyntax) GetAttributes(obj string) string {
	return obj + ".metaClass.properties*.name"
}
