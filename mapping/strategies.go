package mapping

// StrategyTemplate holds the fixed prose of one join translation approach
type StrategyTemplate struct {
	Title   string
	Pros    []string
	Cons    []string
	UseCase string
}

// Strategies - approach prose keyed by strategy name
// Usage: Strategies["Lookup"].Title returns "Referenced Collections with $lookup"
var Strategies = map[string]StrategyTemplate{
	"Embedded": {
		Title: "Embedded Documents",
		Pros: []string{
			"Reads the joined data in a single query with no $lookup",
			"Fewer round trips and no join cost at read time",
			"Related data is updated atomically with its parent document",
		},
		Cons: []string{
			"Write amplification: changing shared data means updating every document that embeds it",
			"Duplication risk when the embedded entity is shared by many parents",
			"Embedded arrays must stay bounded to respect the 16 MB document limit",
		},
		UseCase: "Data that is read together, owned by one parent and rarely updated on its own",
	},
	"Lookup": {
		Title: "Referenced Collections with $lookup",
		Pros: []string{
			"Keeps the normalized schema of the SQL tables",
			"No duplicated data and no consistency work on writes",
			"Direct translation of the SQL JOIN",
		},
		Cons: []string{
			"$lookup runs per document and is slower than reading embedded data",
			"The joined collection needs an index on the foreign field",
			"Aggregation pipelines are more verbose than find()",
		},
		UseCase: "Entities that are shared, large or updated independently, and joins that run occasionally",
	},
	"Denormalized": {
		Title: "Denormalization",
		Pros: []string{
			"Single-collection reads with a plain filter",
			"Frequently read fields are available without any join",
			"Copied fields can be indexed together with the rest of the document",
		},
		Cons: []string{
			"Copied fields go stale when the source changes and need a sync job or change stream",
			"More storage and more work on every write",
			"Application code must keep the copies consistent",
		},
		UseCase: "Read-heavy dashboards and listings where slightly stale data is acceptable",
	},
	"ApplicationJoin": {
		Title: "Application-level Joins",
		Pros: []string{
			"Each query is simple and can use its own indexes",
			"Collections can live on different shards or clusters",
			"Join logic can be cached and reused in the application",
		},
		Cons: []string{
			"Several round trips to the database",
			"Filtering, sorting and paging across collections move into application code",
			"Results are not a consistent snapshot across the queries",
		},
		UseCase: "Multi-collection joins where some collections are cached or sharded separately",
	},
}
