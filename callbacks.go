package reactor

// ConnectionCallback fires whenever a connection transitions to Connected
// (the "up" edge) or to Disconnected (the "down" edge); inspect
// conn.State() to tell which.
type ConnectionCallback func(conn *Connection)

// MessageCallback fires when bytes have arrived on a connection. buf is the
// connection's input buffer — the callback may consume as much or as
// little of it as it wants; whatever is left stays buffered for the next
// call.
type MessageCallback func(conn *Connection, buf *Buffer, receiveTime Timestamp)

// WriteCompleteCallback fires once all data of a Send/SendFile has been
// handed to the kernel: right after a direct write that took everything, or
// once the output buffer has fully drained.
type WriteCompleteCallback func(conn *Connection)

// HighWaterMarkCallback fires once per upward crossing of the
// high-watermark threshold: previous pending bytes below the mark, new
// pending bytes at or above it.
type HighWaterMarkCallback func(conn *Connection, pending int)

// CloseCallback is the server's own eviction hook, invoked after the
// application's ConnectionCallback has observed the down edge.
type CloseCallback func(conn *Connection)
