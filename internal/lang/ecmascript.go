package lang

import "github.com/phobologic/treedeco/internal/ast"

// ecmaSlots lists the field slots shared by the JavaScript and TypeScript
// grammars. Children without a field fall into ast.ChildrenSlot.
var ecmaSlots = map[string][]ast.Slot{
	"function_declaration":           {one("name"), one("parameters"), one("body")},
	"generator_function_declaration": {one("name"), one("parameters"), one("body")},
	"function_expression":            {one("name"), one("parameters"), one("body")},
	"function":                       {one("name"), one("parameters"), one("body")},
	"generator_function":             {one("name"), one("parameters"), one("body")},
	"arrow_function":                 {one("parameter"), one("parameters"), one("body")},
	"method_definition":              {many("decorator"), one("name"), one("parameters"), one("body")},
	"class_declaration":              {many("decorator"), one("name"), one("body")},
	"class":                          {many("decorator"), one("name"), one("body")},
	"field_definition":               {many("decorator"), one("property"), one("value")},

	"call_expression":                 {one("function"), one("arguments")},
	"new_expression":                  {one("constructor"), one("arguments")},
	"member_expression":               {one("object"), one("property")},
	"subscript_expression":            {one("object"), one("index")},
	"assignment_expression":           {one("left"), one("right")},
	"augmented_assignment_expression": {one("left"), one("right")},
	"binary_expression":               {one("left"), one("right")},
	"unary_expression":                {one("argument")},
	"update_expression":               {one("argument")},
	"ternary_expression":              {one("condition"), one("consequence"), one("alternative")},
	"pair":                            {one("key"), one("value")},
	"variable_declarator":             {one("name"), one("value")},
	"assignment_pattern":              {one("left"), one("right")},

	"if_statement":      {one("condition"), one("consequence"), one("alternative")},
	"for_statement":     {one("initializer"), one("condition"), one("increment"), one("body")},
	"for_in_statement":  {one("left"), one("right"), one("body")},
	"while_statement":   {one("condition"), one("body")},
	"do_statement":      {one("body"), one("condition")},
	"try_statement":     {one("body"), one("handler"), one("finalizer")},
	"catch_clause":      {one("parameter"), one("body")},
	"switch_statement":  {one("value"), one("body")},
	"switch_case":       {one("value"), many("body")},
	"labeled_statement": {one("label"), one("body")},

	"import_statement": {one("source")},
	"export_statement": {many("decorator"), one("declaration"), one("value"), one("source")},

	"jsx_element":              {one("open_tag"), one("close_tag")},
	"jsx_opening_element":      {one("name"), many("attribute")},
	"jsx_self_closing_element": {one("name"), many("attribute")},
}

// typedSlots extends ecmaSlots with the TypeScript-only fields.
var typedSlots = merge(ecmaSlots, map[string][]ast.Slot{
	"function_declaration":    {one("name"), one("type_parameters"), one("parameters"), one("return_type"), one("body")},
	"function_expression":     {one("name"), one("type_parameters"), one("parameters"), one("return_type"), one("body")},
	"function":                {one("name"), one("type_parameters"), one("parameters"), one("return_type"), one("body")},
	"arrow_function":          {one("type_parameters"), one("parameter"), one("parameters"), one("return_type"), one("body")},
	"method_definition":       {many("decorator"), one("name"), one("type_parameters"), one("parameters"), one("return_type"), one("body")},
	"class_declaration":       {many("decorator"), one("name"), one("type_parameters"), one("body")},
	"call_expression":         {one("function"), one("type_arguments"), one("arguments")},
	"new_expression":          {one("constructor"), one("type_arguments"), one("arguments")},
	"variable_declarator":     {one("name"), one("type"), one("value")},
	"required_parameter":      {many("decorator"), one("pattern"), one("type"), one("value")},
	"optional_parameter":      {many("decorator"), one("pattern"), one("type"), one("value")},
	"interface_declaration":   {one("name"), one("type_parameters"), one("body")},
	"type_alias_declaration":  {one("name"), one("type_parameters"), one("value")},
	"enum_declaration":        {one("name"), one("body")},
	"public_field_definition": {many("decorator"), one("name"), one("type"), one("value")},
	"property_signature":      {one("name"), one("type")},
})

func merge(base, extra map[string][]ast.Slot) map[string][]ast.Slot {
	out := make(map[string][]ast.Slot, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
