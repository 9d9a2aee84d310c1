// Package httpclient turns connector and request definitions into HTTP calls.
//
// A connector describes a base API; a request describes one endpoint on it.
// Both embed [Definition] and may declare defaults through optional methods:
//
//	type API struct{ httpclient.Definition }
//
//	func (a *API) ResolveBaseURL() string { return "https://api.example.com" }
//	func (a *API) DefaultHeaders() map[string]string {
//		return map[string]string{"Accept": "application/json"}
//	}
//
// # Sending
//
// [Send] merges connector and request into a [PendingRequest], runs the
// request hooks, dispatches and runs the response hooks:
//
//	resp, err := httpclient.Send(ctx, api, &GetUser{ID: 1})
//	if err != nil {
//		return err
//	}
//	name := resp.JSON("name").String()
//
// # Interception
//
// An [Interceptor] may answer instead of the network. The first one found
// wins: the [WithMockClient] option, the connector's, the request's, then the
// connector's [GlobalMocks] registry.
//
// # Integration
//
// This package integrates with:
//   - [github.com/torosent/courier/internal/auth] for authenticators
//   - [github.com/torosent/courier/internal/body] for request bodies
//   - [github.com/torosent/courier/internal/sender] for the network
package httpclient
