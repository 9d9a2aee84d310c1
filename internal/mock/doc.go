// Package mock answers requests from pre-registered responses so tests run
// without a network.
//
// A [Client] holds a FIFO sequence of responses plus responses keyed by
// request type, connector type or URL pattern:
//
//	mc := mock.NewClient(mock.PreventStrayRequests()).
//		Push(mock.Make(map[string]any{"name": "Sam"})).
//		For(&GetUser{}, mock.Fixture("user").Merge(map[string]any{"data.0.twitter": "@sam"}))
//	conn.WithMockClient(mc)
//
// Every match is kept in the client's history for assertions:
//
//	if err := mc.AssertSentCount(1); err != nil {
//		t.Fatal(err)
//	}
//
// Fixtures are JSON files managed by a [FixtureStore]. A missing fixture is
// an error unless the client records, in which case the request is sent once
// and the response saved.
package mock
