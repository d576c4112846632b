// Package sanitizer normalizes free-text and contact input before it is
// validated and stored.
//
// All functions are idempotent. Invalid input is handled by returning an
// empty string rather than an error; validators decide whether empty is
// acceptable.
package sanitizer
