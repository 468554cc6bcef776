package query

// Examples are sample queries, at least one per clause Parse understands.
// The CLI help and the MCP tool description list them.
var Examples = []string{
	"longest run last month",
	"3 fastest rides this year",
	"max elevation walk in march",
	"total distance rides this year",
	"total time and elevation runs last year",
	"total walks",
	"stats runs",
	"10k runs this month",
	"half marathon runs last year",
	"century rides",
}
