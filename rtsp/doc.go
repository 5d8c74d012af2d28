// Package rtsp performs a minimal protocol-level credential check
// against a camera: a single DESCRIBE exchange with Basic or Digest
// authentication, without ever opening a media session.
package rtsp
