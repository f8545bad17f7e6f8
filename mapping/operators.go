package mapping

// ComparisonOperators - fixed SQL comparison to MongoDB query operator table
// Usage: ComparisonOperators[">"] returns "$gt"
var ComparisonOperators = map[string]string{
	"=":  "$eq",
	"!=": "$ne",
	"<>": "$ne",
	">":  "$gt",
	"<":  "$lt",
	">=": "$gte",
	"<=": "$lte",

	"IN":     "$in",
	"NOT_IN": "$nin",
	"LIKE":   "$regex",
}

// LogicalOperators maps SQL boolean connectives to MongoDB
var LogicalOperators = map[string]string{
	"AND": "$and",
	"OR":  "$or",
	"NOT": "$nor",
}

// ArithmeticOperators maps SQL arithmetic to aggregation expression operators
var ArithmeticOperators = map[string]string{
	"+": "$add",
	"-": "$subtract",
	"*": "$multiply",
	"/": "$divide",
	"%": "$mod",
}

// FlippedComparisons mirrors a comparison when its operands are swapped (5 > age -> age < 5)
var FlippedComparisons = map[string]string{
	"$eq":  "$eq",
	"$ne":  "$ne",
	"$gt":  "$lt",
	"$lt":  "$gt",
	"$gte": "$lte",
	"$lte": "$gte",
}

// ReverseComparisons maps MongoDB query operators back to SQL
var ReverseComparisons = map[string]string{
	"$eq":  "=",
	"$ne":  "!=",
	"$gt":  ">",
	"$lt":  "<",
	"$gte": ">=",
	"$lte": "<=",
	"$in":  "IN",
	"$nin": "NOT IN",
}

// ============================================================================
// AGGREGATES
// ============================================================================

// AggregateFunctions maps SQL aggregate functions to $group accumulators
var AggregateFunctions = map[string]string{
	"COUNT": "$sum",
	"SUM":   "$sum",
	"AVG":   "$avg",
	"MAX":   "$max",
	"MIN":   "$min",
}

// ReverseAccumulators maps $group accumulators back to SQL aggregate functions
var ReverseAccumulators = map[string]string{
	"$sum": "SUM",
	"$avg": "AVG",
	"$max": "MAX",
	"$min": "MIN",
}

// IsAggregate checks if a function name is a SQL aggregate
func IsAggregate(name string) bool {
	_, ok := AggregateFunctions[name]
	return ok
}

// ============================================================================
// SCALAR FUNCTIONS
// ============================================================================

// ScalarFunction describes a supported non-aggregate SQL function
type ScalarFunction struct {
	Operator string // aggregation expression operator, empty for date functions
	MinArgs  int
	MaxArgs  int    // -1 = variadic
	Date     bool   // evaluates to a date (NOW, DATE_SUB...)
}

// ScalarFunctions lists every function the parser accepts outside aggregates
var ScalarFunctions = map[string]ScalarFunction{
	"NOW":               {MinArgs: 0, MaxArgs: 0, Date: true},
	"CURRENT_TIMESTAMP": {MinArgs: 0, MaxArgs: 0, Date: true},
	"CURRENT_DATE":      {MinArgs: 0, MaxArgs: 0, Date: true},
	"DATE_SUB":          {MinArgs: 2, MaxArgs: 2, Date: true},
	"DATE_ADD":          {MinArgs: 2, MaxArgs: 2, Date: true},
	"LOWER":             {Operator: "$toLower", MinArgs: 1, MaxArgs: 1},
	"UPPER":             {Operator: "$toUpper", MinArgs: 1, MaxArgs: 1},
	"LENGTH":            {Operator: "$strLenCP", MinArgs: 1, MaxArgs: 1},
	"CONCAT":            {Operator: "$concat", MinArgs: 1, MaxArgs: -1},
	"COALESCE":          {Operator: "$ifNull", MinArgs: 2, MaxArgs: -1},
	"ABS":               {Operator: "$abs", MinArgs: 1, MaxArgs: 1},
	"ROUND":             {Operator: "$round", MinArgs: 1, MaxArgs: 2},
}

// NiladicFunctions may appear without parentheses
var NiladicFunctions = map[string]bool{
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
}

// IntervalUnits converts INTERVAL units to milliseconds
var IntervalUnits = map[string]int64{
	"SECOND": 1000,
	"MINUTE": 60 * 1000,
	"HOUR":   60 * 60 * 1000,
	"DAY":    24 * 60 * 60 * 1000,
	"WEEK":   7 * 24 * 60 * 60 * 1000,
}
