// Package rowsearch embeds the rowsearch secondary index in a Go program.
//
// A Client owns a row store (in-memory or SQLite) and a search engine
// (embedded Bleve or Redis with the search module). Mutations written through
// the client are applied to storage and then synced into the index; searches
// return rows read back from storage, so results never show deleted or expired
// data.
//
//	client, _ := rowsearch.New(ctx, rowsearch.Table{
//	    Name:    "users",
//	    Columns: map[string]string{"city": "text", "age": "int"},
//	    Mappings: map[string]rowsearch.Mapping{
//	        "city": {Type: "text"},
//	        "age":  {Type: "integer"},
//	    },
//	})
//	defer client.Close()
//
//	_, _ = client.Apply(ctx, rowsearch.Mutation{
//	    PartitionKey: []byte("P1"),
//	    Cells: []rowsearch.Cell{
//	        {Column: "city", Value: "Madrid"},
//	        {Column: "age", Value: 30},
//	    },
//	})
//
//	rows, _ := client.Search().
//	    Query(rowsearch.Match("city", "Madrid")).
//	    Filter(rowsearch.Range("age", nil, 65, false, true)).
//	    Limit(10).
//	    Do(ctx)
package rowsearch
