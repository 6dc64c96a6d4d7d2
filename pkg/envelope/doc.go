// Package envelope defines the application message tree carried inside
// protocol frames and the Translator that maps between the two.
//
// A message has an outer tag (Request, Response, Ping, Pong) and, for
// requests and responses, an inner payload tagged by kind. Host-to-client
// requests with notification kinds (EditBuffer, InterceptedKey, PreExec,
// PostExec, Prompt) are unsolicited and never answered; client-to-host
// requests (InsertText, Intercept, RunProcess) may be fire-and-forget or
// correlated by message id.
//
// Unknown inner kinds decode to UnknownPayload with the tag preserved
// rather than failing, so a newer host cannot break an older client: the
// dispatcher drops what it does not recognize and keeps parsing.
//
// The Translator owns the frame-level concerns the message tree must not
// see: nonce generation, wire version checks, and optional gzip
// compression of the serialized tree.
package envelope
