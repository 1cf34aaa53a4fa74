// Package usftp implements the client side of the SSH File Transfer
// Protocol, version 3, as described in draft-ietf-secsh-filexfer-02.
//
// It is a synchronous, single-threaded protocol engine: a Conn is built
// from an already-connected pair of byte streams (however they were
// obtained — an SSH subsystem channel, a subprocess's stdio, a test
// pipe) and speaks the wire protocol over them. Pipelined bulk transfer
// (Download/Upload) keeps a bounded window of requests in flight without
// ever spawning a goroutine; pipelining comes from send-ahead ordering,
// not concurrency.
//
// SSH transport, authentication and key exchange are not this package's
// job. Dial and NewClientSession are a thin convenience for obtaining the
// two streams via golang.org/x/crypto/ssh; everything else in this
// package operates purely on io.Reader/io.Writer.
package usftp
