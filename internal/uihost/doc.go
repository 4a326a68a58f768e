/*
Package uihost runs the UI side of the gate on a single goroutine.

Threading contract:
  - One loop goroutine owns every page VM (goja); nothing else touches them
  - Inbound commands cross into the loop through a bounded channel
  - A full buffer drops the command with a log line and a metric, never blocks
  - Correlated query results hop back onto the loop before running JS

Per-page surface inside the VM:
  - console.log/warn/error/info captured into the page's console buffer
  - page.{id,title,url} identity object
  - emit(msg) fire-and-forget message to the attached DevTools client
  - query(msg, cb) correlated request; cb receives the decoded response

Command handling:
  - Runtime.evaluate runs the expression and answers with an evaluation result
  - Page.getTitle answers with the page title
  - A disconnect notice resets the page's console state

Lifecycle:

	host := uihost.New(256, logger, metrics)
	host.AttachBridge(srv.Bridge())
	id, err := host.OpenPage("Garage", "app://garage", script)
	...
	host.Close() // drains, unregisters every page, joins the loop
*/
package uihost
