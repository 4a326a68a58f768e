// Package wire implements the envelope codec for the bridge's WebSocket
// frames.
//
// The bridge is protocol-agnostic transport: payloads are opaque JSON. Only
// the thin envelope around them is parsed here.
//
// Frame Formats:
//   - Outbound batch: JSON array of request envelopes, enqueue order
//     preserved: [{"id":1,"payload":...},{"id":null,"payload":...}]
//   - Request envelope: {"id": <int64|null>, "payload": <JSON>}; id is null
//     when the originator awaits no response
//   - Response envelope: {"id": <int64>, "result": <JSON>}
//
// Inbound frames carrying both a numeric "id" and a "result" member are
// responses; everything else is an opaque command for the UI bridge.
// Classification peeks at the two fields without decoding the payload.
package wire
