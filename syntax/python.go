package syntax

import "strings"

// pythonSyntax renders bridge operations as Python source text, for workers
// embedding a Python interpreter.
type pythonSyntax struct{}

func (pythonSyntax) Name() string { return "python" }

func (pythonSyntax) GetVar(varName string) string { return varName }

func (pythonSyntax) PutVar(varName, expr string) string {
	return varName + " = " + expr + "\ntask.export(" + varName + "=" + varName + ")"
}

func (pythonSyntax) Call(funcName string, args []string) string {
	return funcName + "(" + strings.Join(args, ", ") + ")"
}

func (pythonSyntax) Import(module string) string {
	return "import " + module
}

func (pythonSyntax) GetAttribute(obj, attr string) string {
	return obj + "." + attr
}

func (pythonSyntax) InvokeMethod(obj, method string, argVars []string) string {
	return obj + "." + method + "(" + strings.Join(argVars, ", ") + ")"
}

func (pythonSyntax) GetAttributes(obj string) string {
	return "dir(" + obj + ")"
}
