// Package model tracks reasoning-engine token usage and estimated cost.
//
// Every engine call made by the chat service is recorded against the
// model that served it:
//
//	tracker := model.NewCostTracker()
//	tracker.Record("deepseek-r1-distill-llama-70b", resp.Usage)
//
//	fmt.Printf("%d requests, $%.4f\n", tracker.TotalUsage().Requests, tracker.EstimatedCost())
//
// Prices are per million tokens and cover the hosted models the service is
// normally configured with. Models without a price are still counted but
// contribute nothing to the cost estimate.
package model
