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
	"github.com/smacker/go-tree-sitter/java"

	"github.com/paxoscn/code-impact-analyzer/internal/model"
)

// =============================================================================
// JAVA PARSER - primary language, CORE budget share (§4.1)
// =============================================================================

// JavaParser extracts classes, interfaces, methods, calls, and HTTP/Feign/
// Kafka/DB/Redis annotations from Java sources using Tree-sitter.
type JavaParser struct {
	sitterParser *sitter.Parser
	configs      *ConfigLookup
}

// NewJavaParser creates a Java language parser.
func NewJavaParser() *JavaParser {
	p := sitter.NewParser()
	p.SetLanguage(java.GetLanguage())
	return &JavaParser{sitterParser: p, configs: NewConfigLookup()}
}

func (p *JavaParser) Language() string     { return "java" }
func (p *JavaParser) Extensions() []string { return []string{".java"} }

// javaFileContext carries the per-file state the extraction passes share.
type javaFileContext struct {
	content []byte
	path    string
	pkg     string
	imports map[string]string
	appCfg  *AppConfig
}

// ParseFile parses one Java source file into a ParsedFile (§4.1). A
// Tree-sitter parse failure returns a structured *ParseError; Tree-sitter
// itself is error-tolerant, so syntax errors inside the file still yield a
// partial result rather than aborting.
func (p *JavaParser) ParseFile(path string, content []byte) (*model.ParsedFile, error) {
	tree, err := p.sitterParser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, &ParseError{FilePath: path, Reason: fmt.Sprintf("tree-sitter parse: %v", err)}
	}
	defer tree.Close()

	root := tree.RootNode()

	fctx := &javaFileContext{
		content: content,
		path:    path,
	}
	fctx.pkg = extractJavaPackage(root, content)
	fctx.imports = extractJavaImports(root, content)
	fctx.appCfg = p.configs.Lookup(path)

	pf := &model.ParsedFile{
		FilePath: path,
		Language: "java",
		Imports:  fctx.imports,
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration":
			cls := p.extractClass(child, fctx)
			if cls != nil {
				pf.Classes = append(pf.Classes, *cls)
			}
		}
	}

	return pf, nil
}

// qualify resolves a possibly-simple class name to a fully qualified one
// using the import map, falling back to the same-package assumption idiomatic
// Java allows for unqualified same-package references (§3 "unresolved simple
// class names may be stored as-is").
func (fctx *javaFileContext) qualify(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if strings.Contains(name, ".") {
		return name
	}
	if q, ok := fctx.imports[name]; ok {
		return q
	}
	if fctx.pkg == "" {
		return name
	}
	return fctx.pkg + "." + name
}

func extractJavaPackage(root *sitter.Node, content []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "package_declaration" {
			for j := 0; j < int(child.NamedChildCount()); j++ {
				part := child.NamedChild(j)
				if part.Type() == "scoped_identifier" || part.Type() == "identifier" {
					return part.Content(content)
				}
			}
		}
	}
	return ""
}

func extractJavaImports(root *sitter.Node, content []byte) map[string]string {
	imports := make(map[string]string)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "import_declaration" {
			continue
		}
		var qualified string
		isWildcard := false
		for j := 0; j < int(child.ChildCount()); j++ {
			part := child.Child(j)
			switch part.Type() {
			case "scoped_identifier", "identifier":
				qualified = part.Content(content)
			case "asterisk":
				isWildcard = true
			}
		}
		if qualified == "" || isWildcard {
			continue
		}
		simple := qualified
		if idx := strings.LastIndex(qualified, "."); idx >= 0 {
			simple = qualified[idx+1:]
		}
		imports[simple] = qualified
	}
	return imports
}

// extractClass extracts one class/interface/enum declaration, including its
// methods and any class-level HTTP/Feign annotations (§4.1.2).
func (p *JavaParser) extractClass(node *sitter.Node, fctx *javaFileContext) *model.ClassInfo {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	simpleName := nameNode.Content(fctx.content)
	qualifiedName := fctx.qualify(simpleName)
	isInterface := node.Type() == "interface_declaration"

	var implements []string
	if ifaceNode := node.ChildByFieldName("interfaces"); ifaceNode != nil {
		implements = append(implements, extractTypeList(ifaceNode, fctx)...)
	}

	annotations := collectAnnotations(node, fctx.content)
	classHTTP := classHTTPContext(annotations, simpleName, fctx)

	cls := &model.ClassInfo{
		Name:        qualifiedName,
		IsInterface: isInterface,
		Implements:  implements,
		LineRange: model.LineRange{
			Start: int(node.StartPoint().Row) + 1,
			End:   int(node.EndPoint().Row) + 1,
		},
	}

	fields := NewEnvironment(fctx.imports)
	body := node.ChildByFieldName("body")
	if body != nil {
		collectFieldBindings(body, fctx, fields)
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			if member.Type() == "method_declaration" || member.Type() == "constructor_declaration" {
				m := p.extractMethod(member, fctx, qualifiedName, classHTTP, fields)
				if m != nil {
					cls.Methods = append(cls.Methods, *m)
				}
			}
		}
	}

	return cls
}

// classHTTPInfo carries the class-level HTTP/Feign context down to each
// method (§4.1.2).
type classHTTPInfo struct {
	isFeignClient bool
	serviceName   string
	basePath      string
	appName       string
	contextPath   string
	classMapping  string
	isProvider    bool
}

func classHTTPContext(annotations []javaAnnotation, simpleClassName string, fctx *javaFileContext) classHTTPInfo {
	info := classHTTPInfo{
		appName:     fctx.appCfg.ApplicationName,
		contextPath: fctx.appCfg.ContextPath,
	}
	for _, a := range annotations {
		switch a.name {
		case "FeignClient":
			info.isFeignClient = true
			info.serviceName = trimQuotes(firstOf(a.args["value"], a.args["name"], a.args[""]))
			info.basePath = trimQuotes(a.args["path"])
		case "RestController", "Controller":
			info.isProvider = true
		case "RequestMapping":
			if path := firstOf(a.args["value"], a.args["path"], a.args[""]); path != "" {
				info.classMapping = trimQuotes(path)
			}
		}
	}
	return info
}

// extractMethod extracts one method, including its calls and any HTTP/Kafka/
// DB/Redis operations found in its body.
func (p *JavaParser) extractMethod(node *sitter.Node, fctx *javaFileContext, className string, classHTTP classHTTPInfo, fields *Environment) *model.MethodInfo {
	nameNode := node.ChildByFieldName("name")
	var methodName string
	if nameNode != nil {
		methodName = nameNode.Content(fctx.content)
	} else {
		methodName = lastSimpleName(className) // constructor
	}

	env := &Environment{vars: cloneMap(fields.vars), imports: fctx.imports}
	bindParameters(node, fctx, env) // best-effort; per §9 these stay unresolved for call targets

	mi := &model.MethodInfo{
		QualifiedName: className + "::" + methodName,
		FilePath:      fctx.path,
		LineRange: model.LineRange{
			Start: int(node.StartPoint().Row) + 1,
			End:   int(node.EndPoint().Row) + 1,
		},
	}

	annotations := collectAnnotations(node, fctx.content)
	mi.HTTPAnnotation = methodHTTPAnnotation(annotations, classHTTP)

	body := node.ChildByFieldName("body")
	if body != nil {
		collectLocalBindings(body, fctx, env)
		walkJavaExpressions(body, fctx, env, mi)
	}

	for _, a := range annotations {
		switch a.name {
		case "KafkaListener":
			if topic := firstOf(a.args["topics"], a.args["value"], a.args[""]); topic != "" {
				mi.KafkaOps = append(mi.KafkaOps, model.KafkaOperation{Kind: model.OpConsume, Topic: trimQuotes(topic), Line: int(node.StartPoint().Row) + 1})
			}
		case "Select":
			mi.DBOps = append(mi.DBOps, sqlOpFromAnnotationValue(a, model.OpSelect, node))
		case "Insert":
			mi.DBOps = append(mi.DBOps, sqlOpFromAnnotationValue(a, model.OpInsert, node))
		case "Update":
			mi.DBOps = append(mi.DBOps, sqlOpFromAnnotationValue(a, model.OpUpdate, node))
		case "Delete":
			mi.DBOps = append(mi.DBOps, sqlOpFromAnnotationValue(a, model.OpDelete, node))
		}
	}

	return mi
}

func sqlOpFromAnnotationValue(a javaAnnotation, kind model.OperationKind, node *sitter.Node) model.DBOperation {
	sql := firstOf(a.args["value"], a.args[""])
	return model.DBOperation{Kind: kind, Table: extractTableName(trimQuotes(sql)), Line: int(node.StartPoint().Row) + 1}
}

// methodHTTPAnnotation merges class-level and method-level HTTP context into
// the final HTTPAnnotation for a method, per §4.1.2's composition rules.
func methodHTTPAnnotation(annotations []javaAnnotation, classHTTP classHTTPInfo) *model.HTTPAnnotation {
	verbByAnnotation := map[string]string{
		"GetMapping":    "GET",
		"PostMapping":   "POST",
		"PutMapping":    "PUT",
		"DeleteMapping": "DELETE",
		"PatchMapping":  "PATCH",
	}

	for _, a := range annotations {
		if verb, ok := verbByAnnotation[a.name]; ok {
			methodPath := firstOf(a.args["value"], a.args["path"], a.args[""])
			return buildHTTPAnnotation(verb, methodPath, classHTTP)
		}
		if a.name == "RequestMapping" {
			verb := "GET"
			if m := a.args["method"]; m != "" {
				verb = strings.ToUpper(lastSimpleName(m))
			}
			methodPath := firstOf(a.args["value"], a.args["path"], a.args[""])
			return buildHTTPAnnotation(verb, methodPath, classHTTP)
		}
	}
	return nil
}

func buildHTTPAnnotation(verb, methodPath string, classHTTP classHTTPInfo) *model.HTTPAnnotation {
	methodPath = trimQuotes(methodPath)
	var path string
	if classHTTP.isFeignClient {
		path = ConsumerPath(classHTTP.serviceName, classHTTP.basePath, methodPath)
	} else {
		path = ProviderPath(classHTTP.appName, classHTTP.contextPath, classHTTP.classMapping, methodPath)
	}
	return &model.HTTPAnnotation{
		Verb:          verb,
		Path:          path,
		PathParams:    ExtractPathParams(path),
		IsFeignClient: classHTTP.isFeignClient,
	}
}

// javaAnnotation is a lightly-parsed `@Name(args...)` annotation.
type javaAnnotation struct {
	name string
	args map[string]string // named element -> literal value; "" key holds a bare/single value
}

func collectAnnotations(node *sitter.Node, content []byte) []javaAnnotation {
	var annotations []javaAnnotation
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			ann := child.NamedChild(j)
			switch ann.Type() {
			case "marker_annotation":
				if nameNode := ann.ChildByFieldName("name"); nameNode != nil {
					annotations = append(annotations, javaAnnotation{name: nameNode.Content(content), args: map[string]string{}})
				}
			case "annotation":
				nameNode := ann.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				a := javaAnnotation{name: nameNode.Content(content), args: map[string]string{}}
				argsNode := ann.ChildByFieldName("arguments")
				if argsNode != nil {
					parseAnnotationArgs(argsNode, content, &a)
				}
				annotations = append(annotations, a)
			}
		}
	}
	return annotations
}

func parseAnnotationArgs(argsNode *sitter.Node, content []byte, a *javaAnnotation) {
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		el := argsNode.NamedChild(i)
		switch el.Type() {
		case "element_value_pair":
			keyNode := el.ChildByFieldName("key")
			valNode := el.ChildByFieldName("value")
			if keyNode != nil && valNode != nil {
				a.args[keyNode.Content(content)] = valNode.Content(content)
			}
		default:
			a.args[""] = el.Content(content)
		}
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"")
	return s
}

func lastSimpleName(qualified string) string {
	if idx := strings.LastIndex(qualified, "."); idx >= 0 {
		return qualified[idx+1:]
	}
	if idx := strings.LastIndex(qualified, "::"); idx >= 0 {
		return qualified[idx+2:]
	}
	return qualified
}

func extractTableName(sql string) string {
	upper := strings.ToUpper(sql)
	var marker string
	switch {
	case strings.Contains(upper, "FROM"):
		marker = "FROM"
	case strings.Contains(upper, "INTO"):
		marker = "INTO"
	case strings.Contains(upper, "UPDATE"):
		marker = "UPDATE"
	default:
		return ""
	}
	idx := strings.Index(upper, marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(sql[idx+len(marker):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "`\"';,")
}

func extractTypeList(node *sitter.Node, fctx *javaFileContext) []string {
	var names []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "type_identifier", "scoped_type_identifier":
			names = append(names, fctx.qualify(n.Content(fctx.content)))
		default:
			for i := 0; i < int(n.NamedChildCount()); i++ {
				walk(n.NamedChild(i))
			}
		}
	}
	walk(node)
	return names
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// collectFieldBindings seeds an environment with a class's field
// declarations (§4.1.1).
func collectFieldBindings(classBody *sitter.Node, fctx *javaFileContext, env *Environment) {
	for i := 0; i < int(classBody.NamedChildCount()); i++ {
		member := classBody.NamedChild(i)
		if member.Type() != "field_declaration" {
			continue
		}
		typeNode := member.ChildByFieldName("type")
		if typeNode == nil {
			continue
		}
		qualifiedType := fctx.qualify(baseJavaTypeName(typeNode, fctx.content))
		for j := 0; j < int(member.ChildCount()); j++ {
			decl := member.Child(j)
			if decl.Type() != "variable_declarator" {
				continue
			}
			if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
				env.Bind(nameNode.Content(fctx.content), qualifiedType)
			}
		}
	}
}

// bindParameters intentionally does *not* qualify parameter types into the
// environment (§9 Open Question) — it only removes each parameter name from
// env, so a parameter that shadows a field of the same name stays unresolved.
func bindParameters(method *sitter.Node, fctx *javaFileContext, env *Environment) {
	params := method.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		if nameNode := params.NamedChild(i).ChildByFieldName("name"); nameNode != nil {
			delete(env.vars, nameNode.Content(fctx.content))
		}
	}
}

// collectLocalBindings walks a method body depth-first, adding each local
// variable declaration to env in the order encountered (§4.1.1).
func collectLocalBindings(node *sitter.Node, fctx *javaFileContext, env *Environment) {
	if node.Type() == "local_variable_declaration" {
		typeNode := node.ChildByFieldName("type")
		if typeNode != nil {
			qualifiedType := fctx.qualify(baseJavaTypeName(typeNode, fctx.content))
			for j := 0; j < int(node.ChildCount()); j++ {
				decl := node.Child(j)
				if decl.Type() != "variable_declarator" {
					continue
				}
				if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
					env.Bind(nameNode.Content(fctx.content), qualifiedType)
				}
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectLocalBindings(node.NamedChild(i), fctx, env)
	}
}

func baseJavaTypeName(typeNode *sitter.Node, content []byte) string {
	switch typeNode.Type() {
	case "generic_type":
		if n := typeNode.ChildByFieldName("name"); n != nil {
			return n.Content(content)
		}
		if typeNode.NamedChildCount() > 0 {
			return baseJavaTypeName(typeNode.NamedChild(0), content)
		}
	case "array_type":
		if n := typeNode.ChildByFieldName("element"); n != nil {
			return baseJavaTypeName(n, content)
		}
	}
	return typeNode.Content(content)
}

// walkJavaExpressions walks a method body for call expressions and
// data-access library calls (Kafka/Redis heuristics), recording MethodCall
// entries and resource operations on mi.
func walkJavaExpressions(node *sitter.Node, fctx *javaFileContext, env *Environment, mi *model.MethodInfo) {
	if node.Type() == "method_invocation" {
		target, objName, methodName := resolveJavaInvocation(node, fctx, env)
		line := int(node.StartPoint().Row) + 1
		mi.Calls = append(mi.Calls, model.MethodCall{Target: target, Line: line})
		detectResourceCall(objName, methodName, node, fctx, mi, line)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkJavaExpressions(node.NamedChild(i), fctx, env, mi)
	}
}

// resolveJavaInvocation resolves a single `object.method(...)` expression,
// decomposing chained calls so an unresolved intermediate receiver only
// affects that one link (§4.1.1).
func resolveJavaInvocation(node *sitter.Node, fctx *javaFileContext, env *Environment) (target, objName, methodName string) {
	nameNode := node.ChildByFieldName("name")
	if nameNode != nil {
		methodName = nameNode.Content(fctx.content)
	}
	objNode := node.ChildByFieldName("object")
	if objNode == nil {
		return env.ResolveTarget("", methodName), "", methodName
	}

	switch objNode.Type() {
	case "identifier":
		objName = objNode.Content(fctx.content)
		return env.ResolveTarget(objName, methodName), objName, methodName
	case "this":
		return env.ResolveTarget("", methodName), "this", methodName
	case "method_invocation":
		// Chained call: resolve the inner call's own target for side effects
		// only; this link's receiver type is unknown, so it gets a bare name.
		return methodName, "", methodName
	case "field_access":
		objName = objNode.Content(fctx.content)
		// e.g. "this.repo" -> use the last identifier as the env lookup key.
		simple := lastSimpleName(objName)
		return env.ResolveTarget(simple, methodName), simple, methodName
	default:
		return methodName, "", methodName
	}
}

// detectResourceCall recognizes a handful of well-known Kafka/Redis client
// method names and records the corresponding operation on mi. This is a
// heuristic layer, not full type resolution — it keys off the simple
// receiver/method name the way the rest of the call-resolution model does.
func detectResourceCall(objName, methodName string, node *sitter.Node, fctx *javaFileContext, mi *model.MethodInfo, line int) {
	args := node.ChildByFieldName("arguments")
	firstArg := ""
	if args != nil && args.NamedChildCount() > 0 {
		firstArg = trimQuotes(args.NamedChild(0).Content(fctx.content))
	}

	lowerObj := strings.ToLower(objName)
	switch {
	case strings.Contains(lowerObj, "kafkatemplate") && methodName == "send":
		if firstArg != "" {
			mi.KafkaOps = append(mi.KafkaOps, model.KafkaOperation{Kind: model.OpProduce, Topic: firstArg, Line: line})
		}
	case strings.Contains(lowerObj, "redistemplate") || strings.Contains(lowerObj, "redisson"):
		switch methodName {
		case "get", "hasKey":
			if firstArg != "" {
				mi.RedisOps = append(mi.RedisOps, model.RedisOperation{Kind: model.OpGet, Pattern: firstArg, Line: line})
			}
		case "set", "opsForValue", "put":
			if firstArg != "" {
				mi.RedisOps = append(mi.RedisOps, model.RedisOperation{Kind: model.OpSet, Pattern: firstArg, Line: line})
			}
		case "delete":
			if firstArg != "" {
				mi.RedisOps = append(mi.RedisOps, model.RedisOperation{Kind: model.OpDelete, Pattern: firstArg, Line: line})
			}
		}
	}
}

var _ LanguageParser = (*JavaParser)(nil)
