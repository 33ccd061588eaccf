// Package financeapi is a thin client for the remote finance REST API.
//
// The API is the system of record for expense records:
//
//	GET  {base}/despesas/{user}  lists the records of a user
//	POST {base}/despesas         creates a record
//
// The client issues exactly one request per call, without retries,
// and surfaces non-2xx responses as *StatusError.
package financeapi
