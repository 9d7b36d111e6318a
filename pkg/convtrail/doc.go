// Package convtrail retrieves model invocation logs from CloudWatch Logs
// and normalizes them into uniform invocation records: synchronous
// Converse calls and reassembled ConverseStream calls come out the same
// shape.
//
// Quick start:
//
//	c, err := convtrail.New(ctx,
//	    convtrail.WithRegion("us-east-1"),
//	    convtrail.WithWindow(6*time.Hour),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s := c.FetchAndNormalize(ctx)
//	for rec, err := range s.Records() {
//	    if err != nil {
//	        log.Fatal(err) // the log store is unreachable
//	    }
//	    fmt.Println(rec.ModelID, rec.Metadata.Usage.TotalTokens)
//	}
//	fmt.Println(len(s.Warnings()), "lines skipped")
//
// Records stream lazily in timestamp order; stop ranging and no further
// log store pages are fetched. Credentials come from the environment's
// default AWS credential chain.
package convtrail
