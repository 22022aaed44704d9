// Package chromelens is a high level Chrome DevTools Protocol client for
// driving Chromium-family browsers (Chrome, Edge, headless-shell, and
// others) for scraping, end-to-end testing, and page automation.
//
// chromelens exposes a synchronous-looking, context.Context-aware API over
// the protocol's asynchronous request/response/event model: a transport
// layer (see Conn and Transport) demultiplexes the single WebSocket
// connection to a browser into per-session command/response pairs and
// broadcast events, and higher layers (Browser, Context, Target,
// Locator) build a synchronous programming model on top.
package chromelens
