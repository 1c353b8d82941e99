// Package ws implements the WebSocket connector of the network adapter using
// github.com/gorilla/websocket. Servers serve the upgrade endpoint on Path;
// clients dial host:port or a full ws:// url, which lets nodes behind http
// proxies join the network.
package ws
