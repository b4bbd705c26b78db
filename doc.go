// Package cuspera provides the hybrid retrieval core of the Cuspera
// product-intelligence platform: a Redis-backed dense (embedding) index
// and an in-process sparse (BM25) index queried together, with the two
// score streams normalized, fused under configurable weights, and
// returned with per-component scores for downstream attribution.
//
//	client, _ := cuspera.New(
//	    cuspera.WithRedis("localhost:6379", ""),
//	    cuspera.WithOpenAI(os.Getenv("EMBEDDING_API_KEY")),
//	)
//	defer client.Close()
//
//	_ = client.IndexDocuments(ctx, []cuspera.Document{
//	    {ID: "a", Content: "Salesforce integration guide"},
//	    {ID: "b", Content: "How do I connect my sales pipeline to a CRM"},
//	})
//
//	resp, _ := client.Retrieve(ctx, "Salesforce", 5)
//	for _, r := range resp.Results {
//	    fmt.Println(r.ID, r.Scores.Combined, r.Scores.Semantic, r.Scores.Keyword)
//	}
package cuspera
