// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

// =============================================================================
// GO PARSER - secondary language (§4.1)
// =============================================================================

// GoParser extracts functions, methods, calls, and net/http/Gin-style route
// registrations, Kafka/SQL/Redis client calls from Go sources.
type GoParser struct {
	sitterParser *sitter.Parser
}

// NewGoParser creates a Go language parser.
func NewGoParser() *GoParser {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &GoParser{sitterParser: p}
}

func (p *GoParser) Language() string     { return "go" }
func (p *GoParser) Extensions() []string { return []string{".go"} }

type goFileContext struct {
	content []byte
	path    string
	pkg     string
	imports map[string]string // local alias -> import path
}

// ParseFile parses one Go source file into a ParsedFile.
func (p *GoParser) ParseFile(path string, content []byte) (*model.ParsedFile, error) {
	tree, err := p.sitterParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, &ParseError{FilePath: path, Reason: fmt.Sprintf("tree-sitter parse: %v", err)}
	}
	defer tree.Close()

	root := tree.RootNode()
	fctx := &goFileContext{content: content, path: path}
	fctx.pkg = extractGoPackage(root, content)
	fctx.imports = extractGoImports(root, content)

	pf := &model.ParsedFile{
		FilePath: path,
		Language: "go",
		Imports:  fctx.imports,
	}

	receiverMethods := make(map[string][]model.MethodInfo)
	var receiverOrder []string

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "function_declaration":
			fn := p.extractFunction(child, fctx)
			if fn != nil {
				pf.Functions = append(pf.Functions, *fn)
			}
		case "method_declaration":
			recvType, m := p.extractMethod(child, fctx)
			if m != nil {
				if _, ok := receiverMethods[recvType]; !ok {
					receiverOrder = append(receiverOrder, recvType)
				}
				receiverMethods[recvType] = append(receiverMethods[recvType], *m)
			}
		case "type_declaration":
			if cls := extractGoTypeDeclaration(child, fctx); cls != nil {
				pf.Classes = append(pf.Classes, *cls)
			}
		}
	}

	// Fold receiver methods into their struct's ClassInfo, synthesizing one
	// if the type declaration lives in another file of the same package.
	for _, recvType := range receiverOrder {
		methods := receiverMethods[recvType]
		found := false
		for i := range pf.Classes {
			if pf.Classes[i].Name == recvType {
				pf.Classes[i].Methods = append(pf.Classes[i].Methods, methods...)
				found = true
				break
			}
		}
		if !found {
			pf.Classes = append(pf.Classes, model.ClassInfo{Name: recvType, Methods: methods})
		}
	}

	return pf, nil
}

func extractGoPackage(root *sitter.Node, content []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "package_clause" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if child.NamedChild(j).Type() == "package_identifier" {
					return child.NamedChild(j).Content(content)
				}
			}
		}
	}
	return ""
}

func extractGoImports(root *sitter.Node, content []byte) map[string]string {
	imports := make(map[string]string)
	var walkSpec func(spec *sitter.Node)
	walkSpec = func(spec *sitter.Node) {
		if spec.Type() != "import_spec" {
			return
		}
		var pathStr, alias string
		for i := 0; i < int(spec.ChildCount()); i++ {
			c := spec.Child(i)
			switch c.Type() {
			case "interpreted_string_literal":
				pathStr = strings.Trim(c.Content(content), "\"")
			case "package_identifier", "dot", "blank_identifier":
				alias = c.Content(content)
			}
		}
		if pathStr == "" {
			return
		}
		key := alias
		if key == "" {
			if idx := strings.LastIndex(pathStr, "/"); idx >= 0 {
				key = pathStr[idx+1:]
			} else {
				key = pathStr
			}
		}
		imports[key] = pathStr
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "import_declaration" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			spec := child.NamedChild(j)
			if spec.Type() == "import_spec_list" {
				for k := 0; k < int(spec.NamedChildCount()); k++ {
					walkSpec(spec.NamedChild(k))
				}
			} else {
				walkSpec(spec)
			}
		}
	}
	return imports
}

// extractGoTypeDeclaration extracts a struct or interface type as a ClassInfo
// (§3 "ClassInfo ... the closest Go analogue is a defined struct/interface
// type"). Non-struct, non-interface type specs are ignored.
func extractGoTypeDeclaration(node *sitter.Node, fctx *goFileContext) *model.ClassInfo {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		spec := node.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		qualifiedName := fctx.pkg + "." + nameNode.Content(fctx.content)
		isInterface := typeNode.Type() == "interface_type"
		if !isInterface && typeNode.Type() != "struct_type" {
			continue
		}

		var implements []string
		if isInterface {
			// Go interfaces are implemented structurally; implements is left
			// empty, and the index builder does not infer structural
			// implementations, so no interface widening applies to Go types.
		}

		return &model.ClassInfo{
			Name:        qualifiedName,
			IsInterface: isInterface,
			Implements:  implements,
			LineRange: model.LineRange{
				Start: int(node.StartPoint().Row) + 1,
				End:   int(node.EndPoint().Row) + 1,
			},
		}
	}
	return nil
}

// extractReceiverType returns the base type name of a method's receiver,
// stripping a leading pointer star (mirrors the teacher's
// extractReceiverType/extractBaseTypeName pair).
func extractReceiverType(method *sitter.Node, content []byte) string {
	recvNode := method.ChildByFieldName("receiver")
	if recvNode == nil {
		return ""
	}
	for i := 0; i < int(recvNode.NamedChildCount()); i++ {
		param := recvNode.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typeNode := param.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		return extractBaseTypeName(typeNode, content)
	}
	return ""
}

func extractBaseTypeName(typeNode *sitter.Node, content []byte) string {
	if typeNode.Type() == "pointer_type" {
		if typeNode.NamedChildCount() > 0 {
			return extractBaseTypeName(typeNode.NamedChild(0), content)
		}
	}
	return typeNode.Content(content)
}

func (p *GoParser) extractFunction(node *sitter.Node, fctx *goFileContext) *model.FunctionInfo {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	qualifiedName := fctx.pkg + "." + nameNode.Content(fctx.content)

	fn := &model.FunctionInfo{
		QualifiedName: qualifiedName,
		FilePath:      fctx.path,
		LineRange: model.LineRange{
			Start: int(node.StartPoint().Row) + 1,
			End:   int(node.EndPoint().Row) + 1,
		},
	}

	env := NewEnvironment(fctx.imports)
	body := node.ChildByFieldName("body")
	if body != nil {
		collectGoLocalBindings(body, fctx, env)
		walkGoExpressions(body, fctx, env, &fn.Calls, &fn.KafkaOps, &fn.DBOps, &fn.RedisOps)
	}
	fn.HTTPAnnotation = detectGoRouteFromBody(body, fctx)

	return fn
}

func (p *GoParser) extractMethod(node *sitter.Node, fctx *goFileContext) (string, *model.MethodInfo) {
	recvType := extractReceiverType(node, fctx.content)
	nameNode := node.ChildByFieldName("name")
	if recvType == "" || nameNode == nil {
		return "", nil
	}
	qualifiedRecv := fctx.pkg + "." + recvType
	methodName := nameNode.Content(fctx.content)

	mi := &model.MethodInfo{
		QualifiedName: qualifiedRecv + "::" + methodName,
		FilePath:      fctx.path,
		LineRange: model.LineRange{
			Start: int(node.StartPoint().Row) + 1,
			End:   int(node.EndPoint().Row) + 1,
		},
	}

	env := NewEnvironment(fctx.imports)
	body := node.ChildByFieldName("body")
	if body != nil {
		collectGoLocalBindings(body, fctx, env)
		walkGoExpressions(body, fctx, env, &mi.Calls, &mi.KafkaOps, &mi.DBOps, &mi.RedisOps)
	}

	mi.HTTPAnnotation = detectGoRouteFromBody(body, fctx)

	return qualifiedRecv, mi
}

// collectGoLocalBindings binds `x := pkg.New(...)`-style short variable
// declarations whose right-hand side is a qualified constructor call, giving
// the call resolver something to key off for the rest of the function.
func collectGoLocalBindings(node *sitter.Node, fctx *goFileContext, env *Environment) {
	if node.Type() == "short_var_declaration" || node.Type() == "var_declaration" {
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if left != nil && right != nil && right.NamedChildCount() > 0 {
			rhs := right.NamedChild(0)
			if rhs.Type() == "call_expression" {
				if fn := rhs.ChildByFieldName("function"); fn != nil {
					bindFromConstructor(left, fn, fctx, env)
				}
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectGoLocalBindings(node.NamedChild(i), fctx, env)
	}
}

func bindFromConstructor(left, fn *sitter.Node, fctx *goFileContext, env *Environment) {
	if left.NamedChildCount() == 0 {
		return
	}
	varName := left.NamedChild(0).Content(fctx.content)
	if fn.Type() != "selector_expression" {
		return
	}
	pkgNode := fn.ChildByFieldName("operand")
	if pkgNode == nil || pkgNode.Type() != "identifier" {
		return
	}
	pkgAlias := pkgNode.Content(fctx.content)
	if importPath, ok := fctx.imports[pkgAlias]; ok {
		env.Bind(varName, importPath)
	}
}

// walkGoExpressions walks a function/method body collecting call expressions
// and well-known client-library resource operations.
func walkGoExpressions(node *sitter.Node, fctx *goFileContext, env *Environment, calls *[]model.MethodCall, kafkaOps *[]model.KafkaOperation, dbOps *[]model.DBOperation, redisOps *[]model.RedisOperation) {
	if node.Type() == "call_expression" {
		fn := node.ChildByFieldName("function")
		if fn != nil {
			line := int(node.StartPoint().Row) + 1
			target, objName, methodName := resolveGoCallTarget(fn, fctx, env)
			*calls = append(*calls, model.MethodCall{Target: target, Line: line})
			detectGoResourceCall(objName, methodName, node, fctx, kafkaOps, dbOps, redisOps, line)
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkGoExpressions(node.NamedChild(i), fctx, env, calls, kafkaOps, dbOps, redisOps)
	}
}

func resolveGoCallTarget(fn *sitter.Node, fctx *goFileContext, env *Environment) (target, objName, methodName string) {
	switch fn.Type() {
	case "identifier":
		name := fn.Content(fctx.content)
		return fctx.pkg + "." + name, "", name
	case "selector_expression":
		operand := fn.ChildByFieldName("operand")
		fieldNode := fn.ChildByFieldName("field")
		if fieldNode == nil {
			return "", "", ""
		}
		methodName = fieldNode.Content(fctx.content)
		if operand == nil {
			return methodName, "", methodName
		}
		switch operand.Type() {
		case "identifier":
			objName = operand.Content(fctx.content)
			if importPath, ok := fctx.imports[objName]; ok {
				return importPath + "." + methodName, objName, methodName
			}
			return env.ResolveTarget(objName, methodName), objName, methodName
		case "selector_expression":
			// Chained selector, e.g. x.field.Method() - resolve only the
			// final link, leaving the intermediate receiver bare.
			return methodName, "", methodName
		default:
			return methodName, "", methodName
		}
	default:
		return "", "", ""
	}
}

// detectGoResourceCall recognizes a handful of well-known Kafka/SQL/Redis
// client call shapes (sarama, database/sql, go-redis) by receiver/method
// name, mirroring the Java parser's heuristic layer for the Go ecosystem.
func detectGoResourceCall(objName, methodName string, node *sitter.Node, fctx *goFileContext, kafkaOps *[]model.KafkaOperation, dbOps *[]model.DBOperation, redisOps *[]model.RedisOperation, line int) {
	args := node.ChildByFieldName("arguments")
	firstArg := ""
	if args != nil && args.NamedChildCount() > 0 {
		firstArg = strings.Trim(args.NamedChild(0).Content(fctx.content), "\"")
	}

	lowerObj := strings.ToLower(objName)
	lowerMethod := strings.ToLower(methodName)

	switch {
	case strings.Contains(lowerObj, "producer") && (lowerMethod == "sendmessage" || lowerMethod == "send"):
		if firstArg != "" {
			*kafkaOps = append(*kafkaOps, model.KafkaOperation{Kind: model.OpProduce, Topic: firstArg, Line: line})
		}
	case strings.Contains(lowerObj, "consumer") && lowerMethod == "consumepartition":
		if firstArg != "" {
			*kafkaOps = append(*kafkaOps, model.KafkaOperation{Kind: model.OpConsume, Topic: firstArg, Line: line})
		}
	case lowerMethod == "query" || lowerMethod == "queryrow" || lowerMethod == "queryrowcontext" || lowerMethod == "querycontext":
		if table := extractTableName(firstArg); table != "" {
			*dbOps = append(*dbOps, model.DBOperation{Kind: model.OpSelect, Table: table, Line: line})
		}
	case lowerMethod == "exec" || lowerMethod == "execcontext":
		if table := extractTableName(firstArg); table != "" {
			kind := model.OpUpdate
			upper := strings.ToUpper(firstArg)
			if strings.HasPrefix(strings.TrimSpace(upper), "INSERT") {
				kind = model.OpInsert
			} else if strings.HasPrefix(strings.TrimSpace(upper), "DELETE") {
				kind = model.OpDelete
			}
			*dbOps = append(*dbOps, model.DBOperation{Kind: kind, Table: table, Line: line})
		}
	case strings.Contains(lowerObj, "redis") || strings.Contains(lowerObj, "rdb"):
		switch lowerMethod {
		case "get", "hget", "exists":
			if firstArg != "" {
				*redisOps = append(*redisOps, model.RedisOperation{Kind: model.OpGet, Pattern: firstArg, Line: line})
			}
		case "set", "hset", "setex":
			if firstArg != "" {
				*redisOps = append(*redisOps, model.RedisOperation{Kind: model.OpSet, Pattern: firstArg, Line: line})
			}
		case "del":
			if firstArg != "" {
				*redisOps = append(*redisOps, model.RedisOperation{Kind: model.OpDelete, Pattern: firstArg, Line: line})
			}
		}
	}
}

// detectGoRouteFromBody recognizes `router.GET("/path", handler)`-style Gin
// route registrations and net/http `mux.HandleFunc("/path", ...)` calls that
// happen to live inside this method body (a route-registration method, not
// the handler itself, in idiomatic Gin code) as well as an explicit HTTP verb
// used as a struct tag comment convention is out of scope; this only handles
// the common call-expression shape.
func detectGoRouteFromBody(body *sitter.Node, fctx *goFileContext) *model.HTTPAnnotation {
	if body == nil {
		return nil
	}
	var found *model.HTTPAnnotation
	var walk func(n *sitter.Node)
	ginVerbs := map[string]string{
		"GET": "GET", "POST": "POST", "PUT": "PUT", "DELETE": "DELETE", "PATCH": "PATCH",
	}
	walk = func(n *sitter.Node) {
		if found != nil {
			return
		}
		if n.Type() == "call_expression" {
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Type() == "selector_expression" {
				fieldNode := fn.ChildByFieldName("field")
				if fieldNode != nil {
					method := fieldNode.Content(fctx.content)
					if verb, ok := ginVerbs[strings.ToUpper(method)]; ok {
						args := n.ChildByFieldName("arguments")
						if args != nil && args.NamedChildCount() > 0 {
							path := strings.Trim(args.NamedChild(0).Content(fctx.content), "\"")
							found = &model.HTTPAnnotation{
								Verb:       verb,
								Path:       path,
								PathParams: ExtractPathParams(path),
							}
							return
						}
					} else if method == "HandleFunc" {
						args := n.ChildByFieldName("arguments")
						if args != nil && args.NamedChildCount() > 0 {
							path := strings.Trim(args.NamedChild(0).Content(fctx.content), "\"")
							found = &model.HTTPAnnotation{
								Verb:       "GET",
								Path:       path,
								PathParams: ExtractPathParams(path),
							}
							return
						}
					}
				}
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
			if found != nil {
				return
			}
		}
	}
	walk(body)
	return found
}

var _ LanguageParser = (*GoParser)(nil)
