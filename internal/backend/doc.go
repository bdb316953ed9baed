// Package backend defines the contract every predictive backend implements,
// the registry the router and job manager resolve backends through, and the
// characteristics catalog describing each backend.
package backend
