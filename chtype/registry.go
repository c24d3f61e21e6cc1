package chtype

// registryEntry is the static metadata the parser consults when it resolves
// a base type name to a Category. This is the "Type Registry" of spec.md
// §2/§4.1: canonical name, category tag, and default encoded length (when
// the type has a fixed wire width independent of arguments).
type registryEntry struct {
	category   Category
	widthBits  int  // 0 when width comes from arguments (e.g. FixedString(n))
	unsigned   bool // integer category only
	takesArgs  bool // true when the name is always followed by "(...)"
	optionArgs bool // true when "(...)" is permitted but not required
}

// baseTypes maps a canonical server type-name spelling to its registry
// entry. Comparison here is exact-case, per spec.md §4.1 ("Category names
// match database canonical spellings").
var baseTypes = map[string]registryEntry{
	"Int8":    {category: CategoryInteger, widthBits: 8},
	"Int16":   {category: CategoryInteger, widthBits: 16},
	"Int32":   {category: CategoryInteger, widthBits: 32},
	"Int64":   {category: CategoryInteger, widthBits: 64},
	"Int128":  {category: CategoryInteger, widthBits: 128},
	"Int256":  {category: CategoryInteger, widthBits: 256},
	"UInt8":   {category: CategoryInteger, widthBits: 8, unsigned: true},
	"UInt16":  {category: CategoryInteger, widthBits: 16, unsigned: true},
	"UInt32":  {category: CategoryInteger, widthBits: 32, unsigned: true},
	"UInt64":  {category: CategoryInteger, widthBits: 64, unsigned: true},
	"UInt128": {category: CategoryInteger, widthBits: 128, unsigned: true},
	"UInt256": {category: CategoryInteger, widthBits: 256, unsigned: true},

	"Float32": {category: CategoryFloat, widthBits: 32},
	"Float64": {category: CategoryFloat, widthBits: 64},

	"Decimal":    {category: CategoryDecimal, takesArgs: true},
	"Decimal32":  {category: CategoryDecimal, widthBits: 32, takesArgs: true},
	"Decimal64":  {category: CategoryDecimal, widthBits: 64, takesArgs: true},
	"Decimal128": {category: CategoryDecimal, widthBits: 128, takesArgs: true},
	"Decimal256": {category: CategoryDecimal, widthBits: 256, takesArgs: true},

	"Bool":       {category: CategoryBool, widthBits: 8},
	"Boolean":    {category: CategoryBool, widthBits: 8},
	"String":     {category: CategoryString},
	"FixedString": {category: CategoryFixedString, takesArgs: true},

	"Date":   {category: CategoryDate, widthBits: 16},
	"Date32": {category: CategoryDate, widthBits: 32},

	"DateTime":   {category: CategoryDateTime, widthBits: 32, optionArgs: true},
	"DateTime64": {category: CategoryDateTime, widthBits: 64, takesArgs: true},

	"UUID": {category: CategoryUUID, widthBits: 128},
	"IPv4": {category: CategoryIPv4, widthBits: 32},
	"IPv6": {category: CategoryIPv6, widthBits: 128},

	"Enum8":  {category: CategoryEnum, widthBits: 8, takesArgs: true},
	"Enum16": {category: CategoryEnum, widthBits: 16, takesArgs: true},

	"Array":           {category: CategoryArray, takesArgs: true},
	"Tuple":           {category: CategoryTuple, takesArgs: true},
	"Map":             {category: CategoryMap, takesArgs: true},
	"Nested":          {category: CategoryNested, takesArgs: true},
	"Nullable":        {category: CategoryNullable, takesArgs: true},
	"LowCardinality":  {category: CategoryLowCardinality, takesArgs: true},
	"AggregateFunction":       {category: CategoryAggregateBitmap, takesArgs: true},
	"SimpleAggregateFunction": {category: CategorySimpleAggregate, takesArgs: true},
}

// lowCardinalityAllowed reports whether a category may be wrapped in
// LowCardinality(...), per spec.md §4.1: "permitted only over string,
// fixed-string, numeric, or date categories".
func lowCardinalityAllowed(c Category) bool {
	switch c {
	case CategoryString, CategoryFixedString, CategoryInteger, CategoryFloat,
		CategoryDecimal, CategoryDate, CategoryDateTime:
		return true
	default:
		return false
	}
}

// nullableForbidden reports whether Nullable(X) is illegal for X's category,
// per spec.md §4.1: nullable-of-nullable and nullable-of-array/tuple/map are
// rejected.
func nullableForbidden(c Category) bool {
	switch c {
	case CategoryNullable, CategoryArray, CategoryTuple, CategoryMap, CategoryNested:
		return true
	default:
		return false
	}
}
