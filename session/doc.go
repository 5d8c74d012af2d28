// Package session holds the cloud token set and account identity for one
// authenticated account, together with the mutation rules for token
// rotation and the optional redis-backed persistence adapter.
package session
