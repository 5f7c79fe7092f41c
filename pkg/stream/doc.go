// Package stream runs one shell command at a time as a logical stream
// over the shared daemon socket.
//
// Only one stream is of interest to the caller at any moment, but the
// socket can still carry frames from a previous command's stream that
// raced with its teardown. Those stray frames are acknowledged and
// discarded rather than misread as the current stream's traffic; the
// drain is ordinary protocol behavior here, not an error path.
package stream
